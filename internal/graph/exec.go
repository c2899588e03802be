package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

type fieldFunc func(ctx context.Context, obj interface{}, args map[string]interface{}) (interface{}, error)

// executableSchema resolves validated operations against the resolver field
// tables. Parsing, validation and variable coercion are done by the gqlgen
// executor before Exec is called.
type executableSchema struct {
	schema *ast.Schema
	fields map[string]map[string]fieldFunc
}

// NewExecutableSchema binds the embedded schema to the resolver.
func NewExecutableSchema(r *Resolver) (graphql.ExecutableSchema, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load GraphQL schema: %w", err)
	}
	es := &executableSchema{schema: schema}
	es.fields = es.bind(r)
	return es, nil
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

// Complexity charges paginated fields per requested item.
func (e *executableSchema) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	switch typeName + "." + fieldName {
	case "Query.users", "Query.notifications", "Query.userNotifications", "User.notifications":
		return 1 + childComplexity*argInt(args, "limit", 10), true
	}
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)

	var root string
	switch rc.Operation.Operation {
	case ast.Query:
		root = "Query"
	case ast.Mutation:
		root = "Mutation"
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	var done bool
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true

		ex := &execution{es: e, rc: rc}
		var data interface{}
		if obj := ex.object(ctx, root, nil, rc.Operation.SelectionSet, nil); obj != nil {
			data = obj
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return graphql.ErrorResponse(ctx, "failed to encode response: %v", err)
		}
		return &graphql.Response{Data: raw}
	}
}

// execution walks one operation. Fields run sequentially, which gives
// mutations the serial order GraphQL requires.
type execution struct {
	es *executableSchema
	rc *graphql.OperationContext
}

// object resolves a selection set on obj. It returns nil when a non-null
// field came back null, so the null bubbles up to the nearest nullable parent.
func (ex *execution) object(ctx context.Context, typeName string, obj interface{}, sel ast.SelectionSet, path ast.Path) *orderedObject {
	fields := graphql.CollectFields(ex.rc, sel, []string{typeName})
	out := &orderedObject{
		keys:   make([]string, 0, len(fields)),
		values: make([]interface{}, 0, len(fields)),
	}

	for _, f := range fields {
		fieldPath := appendPath(path, ast.PathName(f.Alias))

		var v interface{}
		if f.Name == "__typename" {
			v = typeName
		} else {
			v = ex.field(ctx, typeName, obj, f, fieldPath)
		}

		if v == nil && f.Definition != nil && f.Definition.Type.NonNull {
			return nil
		}
		out.keys = append(out.keys, f.Alias)
		out.values = append(out.values, v)
	}
	return out
}

func (ex *execution) field(ctx context.Context, typeName string, obj interface{}, f graphql.CollectedField, path ast.Path) interface{} {
	resolve := ex.es.fields[typeName][f.Name]
	if resolve == nil || f.Definition == nil {
		return nil
	}

	val, err := ex.call(ctx, resolve, obj, f.ArgumentMap(ex.rc.Variables))
	if err != nil {
		ex.addError(ctx, path, err)
		return nil
	}
	return ex.complete(ctx, f.Definition.Type, val, f.Selections, path)
}

func (ex *execution) call(ctx context.Context, resolve fieldFunc, obj interface{}, args map[string]interface{}) (val interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ex.rc.Recover(ctx, r)
		}
	}()
	return resolve(ctx, obj, args)
}

func (ex *execution) complete(ctx context.Context, typ *ast.Type, val interface{}, sel ast.SelectionSet, path ast.Path) interface{} {
	if isNil(val) {
		return nil
	}

	if typ.Elem != nil {
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice {
			ex.addError(ctx, path, fmt.Errorf("expected a list, got %T", val))
			return nil
		}
		items := make([]interface{}, rv.Len())
		for i := range items {
			item := ex.complete(ctx, typ.Elem, rv.Index(i).Interface(), sel, appendPath(path, ast.PathIndex(i)))
			if item == nil && typ.Elem.NonNull {
				return nil
			}
			items[i] = item
		}
		return items
	}

	def := ex.es.schema.Types[typ.NamedType]
	if def == nil {
		return nil
	}
	switch def.Kind {
	case ast.Object:
		if obj := ex.object(ctx, def.Name, val, sel, path); obj != nil {
			return obj
		}
		return nil
	case ast.Scalar, ast.Enum:
		out, err := serialize(def.Name, val)
		if err != nil {
			ex.addError(ctx, path, err)
			return nil
		}
		return out
	default:
		ex.addError(ctx, path, fmt.Errorf("unsupported output type %s", def.Name))
		return nil
	}
}

func (ex *execution) addError(ctx context.Context, path ast.Path, err error) {
	if gqlErr, ok := err.(*gqlerror.Error); ok {
		if gqlErr.Path == nil {
			gqlErr.Path = path
		}
		graphql.AddError(ctx, gqlErr)
		return
	}
	graphql.AddError(ctx, &gqlerror.Error{Message: err.Error(), Path: path, Err: err})
}

func serialize(typeName string, v interface{}) (interface{}, error) {
	switch typeName {
	case "Time":
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case *time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		}
	case "Int":
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return n, nil
		case int64:
			return n, nil
		}
	case "Float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return n, nil
		case int:
			return float64(n), nil
		}
	case "Boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		rv := reflect.Indirect(reflect.ValueOf(v))
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", v, typeName)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}

func appendPath(p ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, el)
}

// orderedObject keeps response keys in selection order.
type orderedObject struct {
	keys   []string
	values []interface{}
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
