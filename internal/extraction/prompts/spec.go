package prompts

import (
	"bytes"
	"fmt"
	"text/template"
)

// Spec declares a single prompt: its name, strict JSON schema, system and
// user templates, and input validators. User templates render against Input
// with missingkey=zero so unset fields become empty strings.
type Spec struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     string
	User       string
	Validators []Validator
}

// Built is a fully rendered prompt ready to hand to the model.
type Built struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     map[string]any
	System     string
	User       string
}

// Build looks up the named spec, validates the input, and renders the user
// template.
func Build(name PromptName, in Input) (Built, error) {
	spec, ok := lookup(name)
	if !ok {
		return Built{}, fmt.Errorf("prompts: unknown prompt %q", name)
	}
	for _, v := range spec.Validators {
		if err := v(in); err != nil {
			return Built{}, fmt.Errorf("prompts: %s: %w", name, err)
		}
	}
	tmpl, err := template.New(string(name)).Option("missingkey=zero").Parse(spec.User)
	if err != nil {
		return Built{}, fmt.Errorf("prompts: %s: parse template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return Built{}, fmt.Errorf("prompts: %s: render template: %w", name, err)
	}
	return Built{
		Name:       spec.Name,
		Version:    spec.Version,
		SchemaName: spec.SchemaName,
		Schema:     spec.Schema(),
		System:     spec.System,
		User:       buf.String(),
	}, nil
}
