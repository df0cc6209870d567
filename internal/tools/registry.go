// Package tools holds the closed catalogue of backend operations the model
// may invoke and validates call arguments before dispatch.
//
// The catalogue is embedded at build time; tool names resolve by table lookup
// and unknown names are a hard error, never a dynamic call.
package tools

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/grandhotel/concierge/pkg/provider/llm"
)

//go:embed catalog.yaml
var catalogYAML []byte

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ArgSpec describes one argument of a tool.
type ArgSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	In          string `yaml:"in"`     // "path" or "" (body)
	Format      string `yaml:"format"` // "date", "time" or ""
	Minimum     *int   `yaml:"minimum"`
	Description string `yaml:"description"`
}

// Spec describes one tool: the backend endpoint it maps to and the arguments
// it accepts.
type Spec struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Method      string    `yaml:"method"`
	Path        string    `yaml:"path"`
	Args        []ArgSpec `yaml:"args"`
}

// PathArgs returns the names of arguments substituted into the URL path.
func (s *Spec) PathArgs() []string {
	var names []string
	for _, a := range s.Args {
		if a.In == "path" {
			names = append(names, a.Name)
		}
	}
	return names
}

// Runner executes a validated tool call against the hotel backend and returns
// the raw response body. Implemented by the backend client.
type Runner interface {
	Call(ctx context.Context, spec *Spec, args map[string]any, bearer string) ([]byte, error)
}

// Registry is the immutable set of tools offered to the model.
type Registry struct {
	specs []*Spec
	index map[string]*Spec
}

// NewRegistry parses the embedded catalogue. It fails only on a malformed
// build, so callers treat an error as fatal.
func NewRegistry() (*Registry, error) {
	var specs []*Spec
	if err := yaml.Unmarshal(catalogYAML, &specs); err != nil {
		return nil, fmt.Errorf("tools: parse catalogue: %w", err)
	}

	index := make(map[string]*Spec, len(specs))
	for _, s := range specs {
		if s.Name == "" || s.Method == "" || s.Path == "" {
			return nil, fmt.Errorf("tools: incomplete catalogue entry %q", s.Name)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", s.Name)
		}
		index[s.Name] = s
	}
	return &Registry{specs: specs, index: index}, nil
}

// Get returns the spec for name, or nil when the tool does not exist.
func (r *Registry) Get(name string) *Spec {
	return r.index[name]
}

// All returns every tool in catalogue order.
func (r *Registry) All() []*Spec {
	return r.specs
}

// Declarations renders the catalogue as provider-neutral tool definitions for
// the completion request.
func (r *Registry) Declarations() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.specs))
	for _, s := range r.specs {
		props := make(map[string]any, len(s.Args))
		var required []string
		for _, a := range s.Args {
			prop := map[string]any{
				"type":        a.Type,
				"description": a.Description,
			}
			if a.Minimum != nil {
				prop["minimum"] = *a.Minimum
			}
			props[a.Name] = prop
			if a.Required {
				required = append(required, a.Name)
			}
		}
		params := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			sort.Strings(required)
			params["required"] = required
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	return defs
}

// Validate checks args against the spec for name. It returns all violations
// joined into one error so the model sees every problem at once. An unknown
// tool name is itself a violation.
func (r *Registry) Validate(name string, args map[string]any) error {
	spec := r.Get(name)
	if spec == nil {
		return fmt.Errorf("tools: unknown tool %q", name)
	}

	known := make(map[string]ArgSpec, len(spec.Args))
	for _, a := range spec.Args {
		known[a.Name] = a
	}

	var errs []error
	for _, a := range spec.Args {
		v, ok := args[a.Name]
		if !ok {
			if a.Required {
				errs = append(errs, fmt.Errorf("%s: required argument missing", a.Name))
			}
			continue
		}
		if err := checkValue(a, v); err != nil {
			errs = append(errs, err)
		}
	}
	for name := range args {
		if _, ok := known[name]; !ok {
			errs = append(errs, fmt.Errorf("%s: unexpected argument", name))
		}
	}
	return errors.Join(errs...)
}

func checkValue(a ArgSpec, v any) error {
	switch a.Type {
	case "integer":
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}
		if a.Minimum != nil && n < *a.Minimum {
			return fmt.Errorf("%s: must be at least %d, got %d", a.Name, *a.Minimum, n)
		}
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: expected a string, got %T", a.Name, v)
		}
		switch a.Format {
		case "date":
			if !datePattern.MatchString(s) {
				return fmt.Errorf("%s: expected YYYY-MM-DD, got %q", a.Name, s)
			}
		case "time":
			if !timePattern.MatchString(s) {
				return fmt.Errorf("%s: expected HH:MM, got %q", a.Name, s)
			}
		}
	}
	return nil
}

// asInt accepts the number encodings produced by JSON decoding of model
// output. A float is integral or it is rejected.
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
