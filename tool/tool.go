package tool

import (
	"context"
	"fmt"
	"reflect"

	"github.com/casualjim/loom/pkg/reflectx"
	"github.com/casualjim/loom/pkg/stdx"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Definition represents a tool backed by a Go function.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]string
	Function    any
}

// Spec is what the model is told about a tool.
type Spec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

var functionReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

// Spec reflects the parameter schema of the function.
func (td Definition) Spec() Spec {
	return Spec{
		Name:        td.Name,
		Description: td.Description,
		Parameters:  functionSchema(&functionReflector, td),
	}
}

func functionSchema(reflector *jsonschema.Reflector, f Definition) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}

	typ := reflect.TypeOf(f.Function)
	if typ == nil || typ.Kind() != reflect.Func {
		return schema
	}

	var required []string
	for i, param := range parameters(typ) {
		paramType := typ.In(param)
		propSchema := reflector.ReflectFromType(paramType)
		propSchema.Version = ""
		name := f.paramName(i)
		schema.Properties.Set(name, propSchema)
		required = append(required, name)
	}
	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}

// parameters returns the positions of the inputs the model supplies, skipping a context.
func parameters(typ reflect.Type) []int {
	var out []int
	for i := 0; i < typ.NumIn(); i++ {
		if reflectx.IsInterface[context.Context](typ.In(i)) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (td Definition) paramName(i int) string {
	key := fmt.Sprintf("param%d", i)
	if p, ok := td.Parameters[key]; ok && p != "" {
		return p
	}
	return key
}

// Option configures a Definition.
type Option = opts.Option[Definition]

// Must is New that panics on error.
func Must(f any, options ...Option) Definition {
	return stdx.Must1(New(f, options...))
}

// New creates a Definition from a function. Without a Name option the function name is used.
func New(f any, options ...Option) (Definition, error) {
	if !reflectx.IsFunction(f) {
		return Definition{}, fmt.Errorf("provided value is not a function")
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	if def.Name == "" {
		def.Name = reflectx.FunctionName(f)
	}

	def.Function = f
	return def, nil
}

// Name sets the tool name.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the text the model sees for the tool.
var Description = opts.ForName[Definition, string]("Description")

// Parameters names the function inputs in order, context excluded.
func Parameters(parameters ...string) opts.Option[Definition] {
	return opts.Type[Definition](func(o *Definition) error {
		o.Parameters = make(map[string]string, len(parameters))
		for i, p := range parameters {
			o.Parameters[fmt.Sprintf("param%d", i)] = p
		}
		return nil
	})
}
