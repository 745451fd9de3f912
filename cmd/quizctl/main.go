// Package main is quizctl, the operator command line for the quizrun API.
package main

import (
	"fmt"
	"os"

	"github.com/phrazzld/quizrun-api/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quizctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
