package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for quizctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the server rejected or failed the request
	ExitCommandError = 2 // bad flags, unreachable server, unusable local config
)

// ExitError carries the process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Envelope is the JSON shape of every quizctl result.
type Envelope struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// Success writes data. In text mode render is used to print it.
func (f *OutputFormatter) Success(data any, render func(w io.Writer) error) error {
	if f.Format == FormatJSON {
		return f.writeJSON(Envelope{Status: "ok", Data: data})
	}
	return render(f.Writer)
}

// Failure writes an API error. The returned error carries ExitFailure.
func (f *OutputFormatter) Failure(apiErr *APIError, data any) error {
	if f.Format == FormatJSON {
		if err := f.writeJSON(Envelope{Status: "error", Data: data, Error: apiErr}); err != nil {
			return err
		}
	}
	return WrapExitError(ExitFailure, "request failed", apiErr)
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ValidFormat reports whether format is supported.
func ValidFormat(format string) bool {
	return format == FormatText || format == FormatJSON
}
