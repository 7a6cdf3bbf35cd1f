package extractors

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	goClassPrefix      = "go_class:"
	goFunctionPrefix   = "go_function:"
	goImportPrefix     = "go_import:"
	goImportFromPrefix = "go_import_from:"
)

// repeatable are function names Go allows to be declared more than once in a
// file. The second and later declarations get a "#<n>" suffix.
var repeatable = map[string]bool{"init": true, "_": true}

// GoExtractor emits one unit per declaration in a Go source file: struct and
// interface types, functions and methods, and imports. Declarations nested in
// function bodies are included.
type GoExtractor struct{}

func (e *GoExtractor) Kind() Kind   { return KindGoSource }
func (e *GoExtractor) Name() string { return "go" }

func (e *GoExtractor) Extract(path string, data []byte) ([]Unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, data, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse %s", path), ErrMalformed)
	}

	base := filepath.Base(path)
	var units []Unit
	emit := func(name, content string) {
		units = append(units, Unit{Name: name, Content: content, Source: path})
	}

	repeats := map[string]int{}
	ast.Inspect(file, func(n ast.Node) bool {
		switch d := n.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.ImportSpec:
					emit(importUnit(s, base))
				case *ast.TypeSpec:
					if name, content, ok := typeUnit(d, s); ok {
						emit(name, content)
					}
				}
			}
		case *ast.FuncDecl:
			name, content := funcUnit(d)
			if d.Recv == nil && repeatable[d.Name.Name] {
				repeats[name]++
				if n := repeats[name]; n > 1 {
					name = fmt.Sprintf("%s#%d", name, n)
				}
			}
			emit(name, content)
		}
		return true
	})
	return units, nil
}

func importUnit(s *ast.ImportSpec, base string) (string, string) {
	module, err := strconv.Unquote(s.Path.Value)
	if err != nil {
		module = s.Path.Value
	}
	if strings.HasPrefix(module, "./") || strings.HasPrefix(module, "../") {
		module = "local"
	}
	if s.Name == nil {
		return goImportPrefix + module,
			fmt.Sprintf("Module '%s' imported in %s.", module, base)
	}
	alias := s.Name.Name
	return goImportFromPrefix + module + "." + alias,
		fmt.Sprintf("'%s' imported from module '%s' in %s.", alias, module, base)
}

func typeUnit(d *ast.GenDecl, s *ast.TypeSpec) (string, string, bool) {
	var embedded []string
	switch t := s.Type.(type) {
	case *ast.StructType:
		embedded = embeddedNames(t.Fields)
	case *ast.InterfaceType:
		embedded = embeddedNames(t.Methods)
	default:
		return "", "", false
	}

	doc := s.Doc
	if doc == nil && !d.Lparen.IsValid() {
		doc = d.Doc
	}
	name := s.Name.Name
	content := docText(doc, fmt.Sprintf("Class '%s' has no description.", name))
	if len(embedded) > 0 {
		content += "\nInherits from: " + bracketList(embedded) + "."
	}
	return goClassPrefix + name, content, true
}

func funcUnit(d *ast.FuncDecl) (string, string) {
	name := d.Name.Name
	if d.Recv != nil && len(d.Recv.List) > 0 {
		name = receiverName(d.Recv.List[0].Type) + "." + name
	}

	content := docText(d.Doc, fmt.Sprintf("Function '%s' has no description.", name))
	var params []string
	for _, field := range d.Type.Params.List {
		if len(field.Names) == 0 {
			params = append(params, "_")
			continue
		}
		for _, n := range field.Names {
			params = append(params, n.Name)
		}
	}
	if len(params) > 0 {
		content += "\nArguments: " + bracketList(params) + "."
	}
	return goFunctionPrefix + name, content
}

// embeddedNames lists anonymous fields of a struct or interface.
func embeddedNames(fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var names []string
	for _, f := range fields.List {
		if len(f.Names) > 0 {
			continue
		}
		if _, isFunc := f.Type.(*ast.FuncType); isFunc {
			continue
		}
		names = append(names, strings.TrimPrefix(types.ExprString(f.Type), "*"))
	}
	return names
}

func receiverName(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return types.ExprString(expr)
		}
	}
}

func docText(doc *ast.CommentGroup, placeholder string) string {
	if text := strings.TrimSpace(doc.Text()); text != "" {
		return text
	}
	return placeholder
}

func bracketList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
