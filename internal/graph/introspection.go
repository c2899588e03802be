package graph

import (
	"context"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/notifly-go/internal/domain"
)

var errIntrospectionDisabled = fmt.Errorf("introspection disabled: %w", domain.ErrForbidden)

// refs turns the value slices returned by the introspection package into
// pointers, which is what the field tables below switch on.
func refs[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

func includeDeprecated(args map[string]interface{}) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

func (e *executableSchema) introspectSchema(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
	if graphql.GetOperationContext(ctx).DisableIntrospection {
		return nil, errIntrospectionDisabled
	}
	return introspection.WrapSchema(e.schema), nil
}

func (e *executableSchema) introspectType(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	if graphql.GetOperationContext(ctx).DisableIntrospection {
		return nil, errIntrospectionDisabled
	}
	return introspection.WrapTypeFromDef(e.schema, e.schema.Types[argString(args, "name")]), nil
}

func (e *executableSchema) introspectionFields() map[string]map[string]fieldFunc {
	return map[string]map[string]fieldFunc{
		"__Schema": {
			"description":      prop(func(s *introspection.Schema) interface{} { return s.Description() }),
			"types":            prop(func(s *introspection.Schema) interface{} { return refs(s.Types()) }),
			"queryType":        prop(func(s *introspection.Schema) interface{} { return s.QueryType() }),
			"mutationType":     prop(func(s *introspection.Schema) interface{} { return s.MutationType() }),
			"subscriptionType": prop(func(s *introspection.Schema) interface{} { return s.SubscriptionType() }),
			"directives":       prop(func(s *introspection.Schema) interface{} { return refs(s.Directives()) }),
		},
		"__Type": {
			"kind":        prop(func(t *introspection.Type) interface{} { return t.Kind() }),
			"name":        prop(func(t *introspection.Type) interface{} { return t.Name() }),
			"description": prop(func(t *introspection.Type) interface{} { return t.Description() }),
			// SpecifiedByURL reads the definition, which wrapper types lack.
			"specifiedByURL": prop(func(t *introspection.Type) interface{} {
				if t.Kind() != "SCALAR" {
					return nil
				}
				return t.SpecifiedByURL()
			}),
			"isOneOf": prop(func(t *introspection.Type) interface{} {
				name := t.Name()
				if name == nil || t.Kind() != "INPUT_OBJECT" {
					return false
				}
				return e.schema.Types[*name].Directives.ForName("oneOf") != nil
			}),
			"fields": func(_ context.Context, obj interface{}, args map[string]interface{}) (interface{}, error) {
				t := obj.(*introspection.Type)
				if k := t.Kind(); k != "OBJECT" && k != "INTERFACE" {
					return nil, nil
				}
				return refs(t.Fields(includeDeprecated(args))), nil
			},
			"interfaces": prop(func(t *introspection.Type) interface{} {
				if k := t.Kind(); k != "OBJECT" && k != "INTERFACE" {
					return nil
				}
				return refs(t.Interfaces())
			}),
			"possibleTypes": prop(func(t *introspection.Type) interface{} {
				if k := t.Kind(); k != "INTERFACE" && k != "UNION" {
					return nil
				}
				return refs(t.PossibleTypes())
			}),
			"enumValues": func(_ context.Context, obj interface{}, args map[string]interface{}) (interface{}, error) {
				t := obj.(*introspection.Type)
				if t.Kind() != "ENUM" {
					return nil, nil
				}
				return refs(t.EnumValues(includeDeprecated(args))), nil
			},
			"inputFields": prop(func(t *introspection.Type) interface{} {
				if t.Kind() != "INPUT_OBJECT" {
					return nil
				}
				return refs(t.InputFields())
			}),
			"ofType": prop(func(t *introspection.Type) interface{} { return t.OfType() }),
		},
		"__Field": {
			"name":              prop(func(f *introspection.Field) interface{} { return f.Name }),
			"description":       prop(func(f *introspection.Field) interface{} { return f.Description() }),
			"args":              prop(func(f *introspection.Field) interface{} { return refs(f.Args) }),
			"type":              prop(func(f *introspection.Field) interface{} { return f.Type }),
			"isDeprecated":      prop(func(f *introspection.Field) interface{} { return f.IsDeprecated() }),
			"deprecationReason": prop(func(f *introspection.Field) interface{} { return f.DeprecationReason() }),
		},
		"__InputValue": {
			"name":              prop(func(i *introspection.InputValue) interface{} { return i.Name }),
			"description":       prop(func(i *introspection.InputValue) interface{} { return i.Description() }),
			"type":              prop(func(i *introspection.InputValue) interface{} { return i.Type }),
			"defaultValue":      prop(func(i *introspection.InputValue) interface{} { return i.DefaultValue }),
			"isDeprecated":      prop(func(*introspection.InputValue) interface{} { return false }),
			"deprecationReason": prop(func(*introspection.InputValue) interface{} { return nil }),
		},
		"__EnumValue": {
			"name":              prop(func(v *introspection.EnumValue) interface{} { return v.Name }),
			"description":       prop(func(v *introspection.EnumValue) interface{} { return v.Description() }),
			"isDeprecated":      prop(func(v *introspection.EnumValue) interface{} { return v.IsDeprecated() }),
			"deprecationReason": prop(func(v *introspection.EnumValue) interface{} { return v.DeprecationReason() }),
		},
		"__Directive": {
			"name":         prop(func(d *introspection.Directive) interface{} { return d.Name }),
			"description":  prop(func(d *introspection.Directive) interface{} { return d.Description() }),
			"locations":    prop(func(d *introspection.Directive) interface{} { return d.Locations }),
			"args":         prop(func(d *introspection.Directive) interface{} { return refs(d.Args) }),
			"isRepeatable": prop(func(d *introspection.Directive) interface{} { return d.IsRepeatable }),
		},
	}
}
