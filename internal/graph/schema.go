package graph

import (
	_ "embed"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var (
	parsedSchema *ast.Schema
	schemaOnce   sync.Once
	schemaErr    error
)

// loadSchema parses the embedded SDL once.
func loadSchema() (*ast.Schema, error) {
	schemaOnce.Do(func() {
		s, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource, BuiltIn: false})
		if err != nil {
			schemaErr = err
			return
		}
		parsedSchema = s
	})
	return parsedSchema, schemaErr
}
