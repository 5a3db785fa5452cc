package context

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// DefaultPrompt is the built-in system prompt template used when no custom
// prompt file is configured. It uses Go text/template syntax with PromptData
// fields: .Time, .Owner
const DefaultPrompt = `You draft replies to incoming messages on behalf of {{if .Owner}}{{.Owner}}{{else}}the user{{end}}.

## Rules

- Reply in the language of the message.
- Keep it short: two or three sentences, under 80 words.
- Be polite and direct. Do not invent facts, prices, dates or commitments.
- If the message needs a decision only the user can make, say you will get back to them.
- Output the reply text only, without a greeting line like "Draft:".

Current time: {{.Time}}`

// PromptData is the data passed to the system prompt template.
type PromptData struct {
	Time  string
	Owner string
}

func loadPrompt(path string) (*template.Template, error) {
	text := DefaultPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		text = string(data)
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return tmpl, nil
}

func renderPrompt(tmpl *template.Template, owner string, now time.Time) (string, error) {
	var buf bytes.Buffer
	data := PromptData{Time: now.Format(time.RFC1123), Owner: owner}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}
