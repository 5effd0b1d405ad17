//go:build cgo

package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codegraph/internal/model"
)

// TreeSitterAvailable reports whether tree-sitter parsers are compiled in.
func TreeSitterAvailable() bool { return true }

func newTreeSitterPorts() []Port {
	return []Port{
		&TreeSitterParser{language: "go", tsLang: golang.GetLanguage()},
		&TreeSitterParser{language: "python", tsLang: python.GetLanguage()},
		&TreeSitterParser{language: "javascript", tsLang: javascript.GetLanguage()},
		&TreeSitterParser{language: "typescript", tsLang: typescript.GetLanguage()},
	}
}

// TreeSitterParser extracts declarations, imports, and call references from a
// real syntax tree. Unlike the regex parsers it sees call expressions, so its
// fragments carry calls edges for the merger to resolve.
type TreeSitterParser struct {
	language string
	tsLang   *sitter.Language
}

// Language implements Port.
func (p *TreeSitterParser) Language() string { return p.language }

// Parse implements Port. A fresh sitter.Parser per call keeps the type safe
// for concurrent workers.
func (p *TreeSitterParser) Parse(path string, content []byte) (*model.Fragment, error) {
	sp := sitter.NewParser()
	sp.SetLanguage(p.tsLang)

	tree, err := sp.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	b := newFragmentBuilder(path, p.language)
	w := &treeWalker{
		builder:  b,
		source:   content,
		language: p.language,
	}
	w.walk(tree.RootNode(), 0)
	return b.build(), nil
}

// treeWalker carries walk state: the enclosing declaration's local id is
// threaded through recursion so nested declarations and calls attach to the
// right owner.
type treeWalker struct {
	builder  *fragmentBuilder
	source   []byte
	language string
}

func (w *treeWalker) walk(node *sitter.Node, owner int) {
	if node == nil {
		return
	}

	next := owner
	switch node.Type() {
	case "function_declaration", "function_definition", "generator_function_declaration":
		next = w.declare(node, owner, model.KindFunction)
	case "method_declaration", "method_definition":
		next = w.declare(node, owner, model.KindMethod)
	case "class_declaration", "class_definition":
		next = w.declareClass(node, owner)
	case "interface_declaration":
		next = w.declare(node, owner, model.KindInterface)
	case "type_declaration":
		next = w.declareGoType(node, owner)
	case "import_declaration", "import_statement", "import_from_statement", "import_spec":
		w.declareImport(node, owner)
		return
	case "call_expression", "call":
		w.recordCall(node, owner)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), next)
	}
}

// declare adds a named declaration node under owner and returns its local id.
// Nameless declarations still get a node; the merger supplies the fallback
// name from kind and id.
func (w *treeWalker) declare(node *sitter.Node, owner int, kind model.NodeKind) int {
	name := w.fieldText(node, "name")
	if kind == model.KindFunction && w.language == "python" && owner != 0 {
		// def inside a class body is a method.
		kind = model.KindMethod
	}
	id := w.builder.addNode(kind, name, line(node), column(node))
	w.builder.addEdge(owner, id, model.EdgeContains, 1.0)
	return id
}

func (w *treeWalker) declareClass(node *sitter.Node, owner int) int {
	id := w.builder.addNode(model.KindClass, w.fieldText(node, "name"), line(node), column(node))
	w.builder.addEdge(owner, id, model.EdgeContains, 1.0)

	// superclass field (js/ts "extends", python argument list).
	if sup := node.ChildByFieldName("superclass"); sup != nil {
		w.builder.addRefEdge(id, w.text(sup), model.EdgeInherits, 1.0)
	}
	if args := node.ChildByFieldName("superclasses"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			base := args.NamedChild(i)
			if base.Type() == "identifier" || base.Type() == "attribute" {
				w.builder.addRefEdge(id, w.text(base), model.EdgeInherits, 1.0)
			}
		}
	}
	return id
}

// declareGoType expands a Go type_declaration into class or interface nodes.
func (w *treeWalker) declareGoType(node *sitter.Node, owner int) int {
	last := owner
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec == nil || spec.Type() != "type_spec" {
			continue
		}
		name := w.fieldText(spec, "name")
		kind := model.KindClass
		if t := spec.ChildByFieldName("type"); t != nil && t.Type() == "interface_type" {
			kind = model.KindInterface
		}
		id := w.builder.addNode(kind, name, line(spec), column(spec))
		w.builder.addEdge(owner, id, model.EdgeContains, 1.0)
		last = id
	}
	return last
}

func (w *treeWalker) declareImport(node *sitter.Node, owner int) {
	for _, module := range w.importedModules(node) {
		id := w.builder.addNode(model.KindImport, module, line(node), column(node))
		w.builder.addEdge(0, id, model.EdgeContains, 1.0)
		w.builder.addRefEdge(0, ModuleRefPrefix+module, model.EdgeImports, 0.5)
	}
	_ = owner
}

func (w *treeWalker) importedModules(node *sitter.Node) []string {
	var modules []string
	switch node.Type() {
	case "import_spec":
		if p := node.ChildByFieldName("path"); p != nil {
			modules = append(modules, trimQuotes(w.text(p)))
		}
	case "import_declaration":
		// Go single-import form; block form recurses into import_specs.
		var specs func(*sitter.Node)
		specs = func(n *sitter.Node) {
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if c == nil {
					continue
				}
				if c.Type() == "import_spec" {
					if p := c.ChildByFieldName("path"); p != nil {
						modules = append(modules, trimQuotes(w.text(p)))
					}
					continue
				}
				specs(c)
			}
		}
		specs(node)
		// JS import declarations carry a string source.
		if src := node.ChildByFieldName("source"); src != nil {
			modules = append(modules, trimQuotes(w.text(src)))
		}
	case "import_statement", "import_from_statement":
		if m := node.ChildByFieldName("module_name"); m != nil {
			modules = append(modules, w.text(m))
		} else {
			for i := 0; i < int(node.NamedChildCount()); i++ {
				c := node.NamedChild(i)
				if c.Type() == "dotted_name" || c.Type() == "aliased_import" {
					modules = append(modules, w.text(c))
					break
				}
			}
		}
	}
	return modules
}

// recordCall emits a symbolic calls edge from the enclosing declaration to
// the callee name. Calls at file scope attach to the file node.
func (w *treeWalker) recordCall(node *sitter.Node, owner int) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := calleeName(w.text(fn))
	if name == "" {
		return
	}
	w.builder.addRefEdge(owner, name, model.EdgeCalls, 1.0)
}

// calleeName reduces a callee expression to its final identifier:
// pkg.Func -> Func, obj.method -> method.
func calleeName(expr string) string {
	for i := len(expr) - 1; i >= 0; i-- {
		if expr[i] == '.' {
			return expr[i+1:]
		}
	}
	return expr
}

func (w *treeWalker) fieldText(node *sitter.Node, field string) string {
	c := node.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return w.text(c)
}

func (w *treeWalker) text(node *sitter.Node) string {
	return string(w.source[node.StartByte():node.EndByte()])
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func line(node *sitter.Node) int   { return int(node.StartPoint().Row) + 1 }
func column(node *sitter.Node) int { return int(node.StartPoint().Column) + 1 }
