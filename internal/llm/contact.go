package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/contact.tmpl
var contactPrompt string

var contactTemplate = template.Must(template.New("contact").Parse(contactPrompt))

const NotAvailable = "N/A"

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

type Contact struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

// ExtractContact asks the model for the candidate's contact block. Missing or
// non-string values come back as "N/A".
func ExtractContact(ctx context.Context, gen Generator, text string) (*Contact, error) {
	var prompt bytes.Buffer
	if err := contactTemplate.Execute(&prompt, struct{ Text string }{Text: text}); err != nil {
		return nil, fmt.Errorf("render contact prompt: %w", err)
	}

	raw, err := gen.Generate(ctx, Request{
		System:    "You are a resume parser. Return only valid JSON.",
		Prompt:    prompt.String(),
		JSON:      true,
		MaxTokens: 500,
	})
	if err != nil {
		return nil, err
	}
	return parseContact(raw)
}

func parseContact(raw string) (*Contact, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	address, _ := data["address"].(map[string]any)
	return &Contact{
		Name:  stringOrNA(data["name"]),
		Email: stringOrNA(data["email"]),
		Phone: stringOrNA(data["phone"]),
		Address: Address{
			Street: stringOrNA(address["street"]),
			City:   stringOrNA(address["city"]),
			State:  stringOrNA(address["state"]),
			Zip:    stringOrNA(address["zip"]),
		},
	}, nil
}

func stringOrNA(v any) string {
	s, ok := v.(string)
	if !ok {
		return NotAvailable
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return NotAvailable
	}
	return s
}

// extractJSON strips markdown fences and surrounding prose some models add.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}
