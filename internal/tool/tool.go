package tool

import (
	"fmt"
	"reflect"
	"strings"
)

// Tool is one capability the model may invoke: a unique name, a natural
// language description, a JSON-Schema parameter description, and the
// implementation. Build tools with New so the schema is derived from a
// declared argument struct rather than written by hand.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Run         func(args map[string]any) (string, error)
}

// Option tweaks schema derivation.
type Option func(*options)

type options struct {
	allowUntyped bool
}

// AllowUntyped permits interface-typed argument fields. By default a
// field without a concrete type is rejected, since the model would get
// no usable type hint for it.
func AllowUntyped(v bool) Option {
	return func(o *options) { o.allowUntyped = v }
}

// New builds a tool whose parameter schema is reflected from argsStruct.
// Field names come from json tags, descriptions from `description`
// tags; pointer or omitempty fields are optional, everything else is
// required.
func New(name, description string, argsStruct any, run func(args map[string]any) (string, error), opts ...Option) (Tool, error) {
	if name == "" {
		return Tool{}, fmt.Errorf("tool name must not be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	params, err := reflectSchema(argsStruct, o)
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Run:         run,
	}, nil
}

// Descriptor renders the provider wire form of the tool.
func (t Tool) Descriptor() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		},
	}
}

func reflectSchema(argsStruct any, o options) (map[string]any, error) {
	props := make(map[string]any)
	required := make([]string, 0)

	if argsStruct != nil {
		rt := reflect.TypeOf(argsStruct)
		if rt.Kind() == reflect.Ptr {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct {
			return nil, fmt.Errorf("argument spec must be a struct, got %s", rt.Kind())
		}
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			name := field.Name
			tagParts := strings.Split(jsonTag, ",")
			if tagParts[0] != "" {
				name = tagParts[0]
			}

			jsonType, err := schemaType(field.Type, o)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fieldSchema := map[string]any{"type": jsonType}
			if desc := field.Tag.Get("description"); desc != "" {
				fieldSchema["description"] = desc
			}
			props[name] = fieldSchema

			if field.Type.Kind() != reflect.Ptr && !hasOmitEmpty(tagParts) {
				required = append(required, name)
			}
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

func schemaType(t reflect.Type, o options) (string, error) {
	switch t.Kind() {
	case reflect.String:
		return "string", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer", nil
	case reflect.Float32, reflect.Float64:
		return "number", nil
	case reflect.Bool:
		return "boolean", nil
	case reflect.Slice, reflect.Array:
		return "array", nil
	case reflect.Map, reflect.Struct:
		return "object", nil
	case reflect.Ptr:
		return schemaType(t.Elem(), o)
	case reflect.Interface:
		if o.allowUntyped {
			return "string", nil
		}
		return "", fmt.Errorf("untyped field rejected (use AllowUntyped to permit)")
	default:
		return "", fmt.Errorf("unsupported field kind %s", t.Kind())
	}
}

func hasOmitEmpty(tagParts []string) bool {
	for _, p := range tagParts[1:] {
		if strings.TrimSpace(p) == "omitempty" {
			return true
		}
	}
	return false
}
