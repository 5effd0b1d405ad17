package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"

	"codegraph/internal/model"
)

// RegexParser is a pattern-based parser. It extracts declarations and import
// relations reliably; call edges are left to the tree-sitter parsers, so
// graphs built from this parser alone under-report call relationships.
type RegexParser struct {
	language string
}

// NewRegexParser returns a pattern-based parser for the given language.
func NewRegexParser(language string) *RegexParser {
	return &RegexParser{language: language}
}

// Language implements Port.
func (p *RegexParser) Language() string { return p.language }

// Parse implements Port.
func (p *RegexParser) Parse(path string, content []byte) (*model.Fragment, error) {
	b := newFragmentBuilder(path, p.language)

	switch p.language {
	case "go":
		p.parseGo(b, content)
	case "python":
		p.parsePython(b, content)
	case "javascript", "typescript":
		p.parseJS(b, content)
	default:
		return nil, fmt.Errorf("unsupported language %q", p.language)
	}

	return b.build(), nil
}

var (
	goFuncRe        = regexp.MustCompile(`^func\s+([A-Za-z_]\w*)\s*\(`)
	goMethodRe      = regexp.MustCompile(`^func\s+\(\s*\w+\s+\*?([A-Za-z_]\w*)\s*\)\s+([A-Za-z_]\w*)\s*\(`)
	goStructRe      = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+struct\b`)
	goInterfaceRe   = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+interface\b`)
	goImportOneRe   = regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportBlockRe = regexp.MustCompile(`^\s*(?:[\w.]+\s+)?"([^"]+)"`)
)

func (p *RegexParser) parseGo(b *fragmentBuilder, content []byte) {
	types := make(map[string]int)
	inImportBlock := false

	forEachLine(content, func(line string, lineNo int) {
		switch {
		case inImportBlock:
			if line == ")" {
				inImportBlock = false
			} else if m := goImportBlockRe.FindStringSubmatch(line); m != nil {
				p.addImport(b, m[1], lineNo)
			}
		case line == "import (" || bytes.HasPrefix([]byte(line), []byte("import (")):
			inImportBlock = true
		case goImportOneRe.MatchString(line):
			p.addImport(b, goImportOneRe.FindStringSubmatch(line)[1], lineNo)
		case goMethodRe.MatchString(line):
			m := goMethodRe.FindStringSubmatch(line)
			recv, name := m[1], m[2]
			id := b.addNode(model.KindMethod, name, lineNo, 1)
			if owner, ok := types[recv]; ok {
				b.addEdge(owner, id, model.EdgeContains, 1.0)
			} else {
				// Receiver type declared later in the file or elsewhere;
				// fall back to file ownership.
				b.addEdge(0, id, model.EdgeContains, 1.0)
			}
		case goFuncRe.MatchString(line):
			name := goFuncRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindFunction, name, lineNo, 1)
			b.addEdge(0, id, model.EdgeContains, 1.0)
		case goStructRe.MatchString(line):
			name := goStructRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindClass, name, lineNo, 1)
			types[name] = id
			b.addEdge(0, id, model.EdgeContains, 1.0)
		case goInterfaceRe.MatchString(line):
			name := goInterfaceRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindInterface, name, lineNo, 1)
			types[name] = id
			b.addEdge(0, id, model.EdgeContains, 1.0)
		}
	})
}

var (
	pyClassRe  = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)\s*(?:\(([^)]*)\))?\s*:`)
	pyDefRe    = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyImportRe = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	pyFromRe   = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	pyBaseRe   = regexp.MustCompile(`[A-Za-z_]\w*`)
)

func (p *RegexParser) parsePython(b *fragmentBuilder, content []byte) {
	// Track the innermost open class by indentation so defs nest correctly.
	type openClass struct {
		local  int
		indent int
	}
	var stack []openClass

	popTo := func(indent int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
	}

	forEachLine(content, func(line string, lineNo int) {
		switch {
		case pyFromRe.MatchString(line):
			p.addImport(b, pyFromRe.FindStringSubmatch(line)[1], lineNo)
		case pyImportRe.MatchString(line):
			p.addImport(b, pyImportRe.FindStringSubmatch(line)[1], lineNo)
		case pyClassRe.MatchString(line):
			m := pyClassRe.FindStringSubmatch(line)
			indent, name, bases := len(m[1]), m[2], m[3]
			popTo(indent)

			id := b.addNode(model.KindClass, name, lineNo, indent+1)
			owner := 0
			if len(stack) > 0 {
				owner = stack[len(stack)-1].local
			}
			b.addEdge(owner, id, model.EdgeContains, 1.0)

			for _, base := range pyBaseRe.FindAllString(bases, -1) {
				if base == "object" {
					continue
				}
				b.addRefEdge(id, base, model.EdgeInherits, 1.0)
			}
			stack = append(stack, openClass{local: id, indent: indent})
		case pyDefRe.MatchString(line):
			m := pyDefRe.FindStringSubmatch(line)
			indent, name := len(m[1]), m[2]
			popTo(indent)

			kind := model.KindFunction
			owner := 0
			if len(stack) > 0 {
				kind = model.KindMethod
				owner = stack[len(stack)-1].local
			}
			id := b.addNode(kind, name, lineNo, indent+1)
			b.addEdge(owner, id, model.EdgeContains, 1.0)
		}
	})
}

var (
	jsFuncRe      = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)
	jsClassRe     = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][\w$]*)(?:\s+extends\s+([A-Za-z_$][\w$.]*))?`)
	jsArrowRe     = regexp.MustCompile(`^\s*(?:export\s+)?const\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?\(`)
	jsImportRe    = regexp.MustCompile(`^\s*import\s+.*?from\s+['"]([^'"]+)['"]`)
	jsRequireRe   = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	tsInterfaceRe = regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`)
)

func (p *RegexParser) parseJS(b *fragmentBuilder, content []byte) {
	forEachLine(content, func(line string, lineNo int) {
		switch {
		case jsImportRe.MatchString(line):
			p.addImport(b, jsImportRe.FindStringSubmatch(line)[1], lineNo)
		case jsRequireRe.MatchString(line):
			p.addImport(b, jsRequireRe.FindStringSubmatch(line)[1], lineNo)
		case jsClassRe.MatchString(line):
			m := jsClassRe.FindStringSubmatch(line)
			id := b.addNode(model.KindClass, m[1], lineNo, 1)
			b.addEdge(0, id, model.EdgeContains, 1.0)
			if m[2] != "" {
				b.addRefEdge(id, m[2], model.EdgeInherits, 1.0)
			}
		case p.language == "typescript" && tsInterfaceRe.MatchString(line):
			name := tsInterfaceRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindInterface, name, lineNo, 1)
			b.addEdge(0, id, model.EdgeContains, 1.0)
		case jsFuncRe.MatchString(line):
			name := jsFuncRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindFunction, name, lineNo, 1)
			b.addEdge(0, id, model.EdgeContains, 1.0)
		case jsArrowRe.MatchString(line):
			name := jsArrowRe.FindStringSubmatch(line)[1]
			id := b.addNode(model.KindFunction, name, lineNo, 1)
			b.addEdge(0, id, model.EdgeContains, 1.0)
		}
	})
}

// addImport records an import: a local import node owned by the file plus a
// symbolic imports edge the merger resolves against other files' nodes.
func (p *RegexParser) addImport(b *fragmentBuilder, module string, lineNo int) {
	id := b.addNode(model.KindImport, module, lineNo, 1)
	b.addEdge(0, id, model.EdgeContains, 1.0)
	b.addRefEdge(0, ModuleRefPrefix+module, model.EdgeImports, 0.5)
}

func forEachLine(content []byte, fn func(line string, lineNo int)) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fn(scanner.Text(), lineNo)
	}
}
