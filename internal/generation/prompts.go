package generation

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// SystemPrompt is sent with every request.
const SystemPrompt = "You are a careful quiz editor. Return ONLY valid JSON, with no prose and no code fences."

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(promptFS, "prompts/*.tmpl"))

// Prompt is one request to a text-completion model.
type Prompt struct {
	System string
	User   string
}

func render(name string, data any) (Prompt, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to execute prompt template %s: %w", name, err)
	}
	return Prompt{System: SystemPrompt, User: buf.String()}, nil
}
