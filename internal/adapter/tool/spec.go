package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"fcfilter/internal/domain"
)

var validParamTypes = map[string]bool{
	domain.ParamString:  true,
	domain.ParamInteger: true,
	domain.ParamNumber:  true,
	domain.ParamBoolean: true,
	domain.ParamArray:   true,
	domain.ParamObject:  true,
}

// Param is one declared tool parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Enum        []any
	Default     any
	HasDefault  bool
	Optional    bool
}

// ParamOption customizes a Param.
type ParamOption func(*Param)

// WithEnum restricts the parameter to the given values.
func WithEnum(values ...any) ParamOption {
	return func(p *Param) { p.Enum = values }
}

// WithDefault makes the parameter optional.
func WithDefault(v any) ParamOption {
	return func(p *Param) {
		p.Default = v
		p.HasDefault = true
	}
}

// Optional marks the parameter as not required without giving a default.
func Optional() ParamOption {
	return func(p *Param) { p.Optional = true }
}

// SpecBuilder assembles a tool descriptor. Errors are collected and reported
// by Build.
type SpecBuilder struct {
	name        string
	description string
	params      []Param
	handler     domain.ToolHandler
	rawSchema   json.RawMessage
}

// NewSpec starts a descriptor for the named tool.
func NewSpec(name, description string) *SpecBuilder {
	return &SpecBuilder{name: name, description: description}
}

// Param declares a parameter. Declaration order is kept.
func (b *SpecBuilder) Param(name, typ, description string, opts ...ParamOption) *SpecBuilder {
	p := Param{Name: name, Type: typ, Description: description}
	for _, opt := range opts {
		opt(&p)
	}
	b.params = append(b.params, p)
	return b
}

// Handler sets the invocation closure.
func (b *SpecBuilder) Handler(h domain.ToolHandler) *SpecBuilder {
	b.handler = h
	return b
}

// ValidateWith replaces the generated validation schema with raw, for tools
// whose input schema is richer than the declared parameters (MCP tools).
func (b *SpecBuilder) ValidateWith(raw json.RawMessage) *SpecBuilder {
	b.rawSchema = raw
	return b
}

// Build validates the descriptor and compiles its argument schema.
func (b *SpecBuilder) Build() (*Spec, error) {
	if problems := b.validate(); len(problems) > 0 {
		return nil, domain.NewDomainError("SpecBuilder.Build", domain.ErrInvalidInput,
			fmt.Sprintf("tool %q: %s", b.name, strings.Join(problems, "; ")))
	}

	spec := domain.ToolSpec{
		Name:        b.name,
		Description: b.description,
		Parameters: domain.ToolParameters{
			Type:       domain.ParamObject,
			Properties: make(map[string]domain.ParamSpec, len(b.params)),
			Required:   []string{},
		},
	}
	for _, p := range b.params {
		spec.Parameters.Properties[p.Name] = domain.ParamSpec{
			Type:        p.Type,
			Enum:        p.Enum,
			Description: p.Description,
		}
		if !p.HasDefault && !p.Optional {
			spec.Parameters.Required = append(spec.Parameters.Required, p.Name)
		}
	}

	raw := b.rawSchema
	if len(raw) == 0 {
		var err error
		if raw, err = schemaDocument(b.params, spec.Parameters.Required); err != nil {
			return nil, domain.NewDomainError("SpecBuilder.Build", domain.ErrInvalidInput, err.Error())
		}
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, domain.NewDomainError("SpecBuilder.Build", domain.ErrInvalidInput,
			fmt.Sprintf("tool %q: compile schema: %v", b.name, err))
	}

	return &Spec{
		spec:    spec,
		params:  append([]Param(nil), b.params...),
		schema:  compiled,
		handler: b.handler,
	}, nil
}

func (b *SpecBuilder) validate() []string {
	var problems []string
	switch {
	case strings.TrimSpace(b.name) == "":
		problems = append(problems, "name must not be empty")
	case strings.HasPrefix(b.name, "_"):
		problems = append(problems, "name must not start with '_'")
	}
	if strings.TrimSpace(b.description) == "" {
		problems = append(problems, "description must not be empty")
	}
	if b.handler == nil {
		problems = append(problems, "handler must be set")
	}

	seen := make(map[string]bool, len(b.params))
	for _, p := range b.params {
		if p.Name == "" {
			problems = append(problems, "parameter name must not be empty")
			continue
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("parameter %q declared twice", p.Name))
		}
		seen[p.Name] = true

		if !validParamTypes[p.Type] {
			problems = append(problems, fmt.Sprintf("parameter %q: type %q is invalid", p.Name, p.Type))
			continue
		}
		if strings.TrimSpace(p.Description) == "" {
			problems = append(problems, fmt.Sprintf("parameter %q: description must not be empty", p.Name))
		}
		for _, v := range p.Enum {
			if !matchesType(p.Type, v) {
				problems = append(problems, fmt.Sprintf("parameter %q: enum value %v is not a %s", p.Name, v, p.Type))
			}
		}
		if p.HasDefault {
			if !matchesType(p.Type, p.Default) {
				problems = append(problems, fmt.Sprintf("parameter %q: default %v is not a %s", p.Name, p.Default, p.Type))
			} else if len(p.Enum) > 0 && !inEnum(p.Enum, p.Default) {
				problems = append(problems, fmt.Sprintf("parameter %q: default %v is not in enum", p.Name, p.Default))
			}
		}
	}
	return problems
}

func matchesType(typ string, v any) bool {
	switch typ {
	case domain.ParamString:
		_, ok := v.(string)
		return ok
	case domain.ParamBoolean:
		_, ok := v.(bool)
		return ok
	case domain.ParamInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	case domain.ParamNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case domain.ParamArray:
		_, ok := v.([]any)
		return ok
	case domain.ParamObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

// schemaDocument renders the JSON Schema used to validate arguments.
// Unknown arguments are rejected.
func schemaDocument(params []Param, required []string) (json.RawMessage, error) {
	props := make(map[string]any, len(params))
	for _, p := range params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}
	return json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	})
}

// Spec is a validated tool descriptor bound to its handler.
type Spec struct {
	spec    domain.ToolSpec
	params  []Param
	schema  *jsonschema.Schema
	handler domain.ToolHandler
}

var _ domain.Tool = (*Spec)(nil)

// Name returns the tool name.
func (s *Spec) Name() string { return s.spec.Name }

// Spec returns the descriptor shown to the task model.
func (s *Spec) Spec() domain.ToolSpec { return s.spec }

// Params returns the declared parameters in declaration order.
func (s *Spec) Params() []Param { return s.params }

// Validate checks raw arguments against the compiled schema.
func (s *Spec) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result := s.schema.Validate(args)
	if !result.IsValid() {
		return domain.NewDomainError("Spec.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("tool %q: %s", s.spec.Name, result.Error()))
	}
	return nil
}

// Invoke applies defaults for missing arguments and runs the handler.
// Arguments are not validated here; see Validate.
func (s *Spec) Invoke(ctx context.Context, args domain.ToolArgs) (string, error) {
	full := make(domain.ToolArgs, len(s.params))
	for k, v := range args {
		full[k] = v
	}
	for _, p := range s.params {
		if _, ok := full[p.Name]; !ok && p.HasDefault {
			full[p.Name] = p.Default
		}
	}
	return s.handler(ctx, full)
}
