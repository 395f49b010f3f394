package passport

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts/passport.xml
var defaultPrompt []byte

// PromptConfig represents a prompt loaded from an XML file.
// It contains the system prompt and the user prompt template.
type PromptConfig struct {
	XMLName xml.Name `xml:"prompt"`
	System  string   `xml:"system"`
	User    string   `xml:"user"`
}

// DefaultPrompt returns the built-in passport prompt.
func DefaultPrompt() *PromptConfig {
	p, err := parsePrompt(defaultPrompt)
	if err != nil {
		panic(fmt.Sprintf("passport: embedded prompt: %v", err))
	}
	return p
}

// LoadPrompt reads and parses a prompt configuration from an XML file.
func LoadPrompt(filepath string) (*PromptConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return parsePrompt(data)
}

func parsePrompt(data []byte) (*PromptConfig, error) {
	var config PromptConfig
	if err := xml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse prompt xml: %w", err)
	}
	config.System = strings.TrimSpace(config.System)
	config.User = strings.TrimSpace(config.User)
	return &config, nil
}

// BuildUserPrompt replaces {{INPUT_JSON}} in the user prompt template.
func (p *PromptConfig) BuildUserPrompt(inputJSON string) string {
	return strings.ReplaceAll(p.User, "{{INPUT_JSON}}", inputJSON)
}
