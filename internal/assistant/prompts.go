package assistant

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/prompts.yaml
var defaultPromptsYAML []byte

// Prompt names of the catalogue.
const (
	PromptRouter     = "router"
	PromptInventory  = "inventory"
	PromptCashflow   = "cashflow"
	PromptQuery      = "query"
	PromptGraphQuery = "graph_query"
	PromptChartType  = "chart_type"
)

var requiredPrompts = []string{
	PromptRouter,
	PromptInventory,
	PromptCashflow,
	PromptQuery,
	PromptGraphQuery,
	PromptChartType,
}

// PromptSpec is one entry of the catalogue. System and User may carry
// {placeholder} variables.
type PromptSpec struct {
	Name   string `yaml:"-"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render substitutes vars into both templates. Unknown placeholders and
// literal JSON braces are left untouched.
func (p PromptSpec) Render(vars map[string]string) (system, user string) {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(p.System), r.Replace(p.User)
}

type Prompts map[string]PromptSpec

// Get returns the named prompt or an error when it is missing.
func (p Prompts) Get(name string) (PromptSpec, error) {
	spec, ok := p[name]
	if !ok {
		return PromptSpec{}, fmt.Errorf("prompt %q not found", name)
	}
	return spec, nil
}

// DefaultPrompts returns the embedded catalogue.
func DefaultPrompts() Prompts {
	p, err := parsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts reads a catalogue from path. Entries missing from the file fall
// back to the embedded defaults.
func LoadPrompts(path string) (Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loaded, err := parsePrompts(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := DefaultPrompts()
	for name, spec := range loaded {
		out[name] = spec
	}
	return out, nil
}

func parsePrompts(b []byte) (Prompts, error) {
	raw := map[string]PromptSpec{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := Prompts{}
	for name, spec := range raw {
		if strings.TrimSpace(spec.System) == "" {
			return nil, fmt.Errorf("prompt %q has no system text", name)
		}
		if spec.User == "" {
			spec.User = "{input}"
		}
		spec.Name = name
		out[name] = spec
	}
	return out, nil
}

func (p Prompts) validate() error {
	for _, name := range requiredPrompts {
		if _, ok := p[name]; !ok {
			return fmt.Errorf("prompt %q not found", name)
		}
	}
	return nil
}
