// Package parser defines the contract language parsers implement and the
// registry mapping file extensions to implementations. Parsers produce
// fragments with file-local identifiers; global id assignment is the
// merger's job, and a parser returning nodes with empty names is valid
// input (the merger supplies a fallback name).
package parser

import (
	"path/filepath"
	"strings"

	"codegraph/internal/model"
)

// Port is the contract every language parser implements. Implementations
// must be safe for concurrent use by multiple workers, or construct
// per-call state internally.
type Port interface {
	// Language returns the language identifier this parser handles.
	Language() string
	// Parse turns file content into a fragment with file-local ids. Parse
	// errors for individual constructs are collected in Fragment.Errors;
	// an error return means the whole file could not be parsed.
	Parse(path string, content []byte) (*model.Fragment, error)
}

// extLanguages maps file extensions to language identifiers.
var extLanguages = map[string]string{
	".go":  "go",
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// LanguageForPath returns the language identifier for a file path, or
// ("", false) for unsupported extensions.
func LanguageForPath(path string) (string, bool) {
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Registry maps languages to parser implementations.
type Registry struct {
	ports map[string]Port
}

// NewRegistry builds the default registry: regex-based parsers for every
// supported language, upgraded to tree-sitter implementations when the
// build has them available.
func NewRegistry() *Registry {
	r := &Registry{ports: make(map[string]Port)}
	for _, lang := range []string{"go", "python", "javascript", "typescript"} {
		r.Register(NewRegexParser(lang))
	}
	if TreeSitterAvailable() {
		for _, p := range newTreeSitterPorts() {
			r.Register(p)
		}
	}
	return r
}

// Register installs (or replaces) the parser for its language.
func (r *Registry) Register(p Port) {
	r.ports[p.Language()] = p
}

// ForPath returns the parser responsible for a file path.
func (r *Registry) ForPath(path string) (Port, bool) {
	lang, ok := LanguageForPath(path)
	if !ok {
		return nil, false
	}
	p, ok := r.ports[lang]
	return p, ok
}

// Languages returns the set of registered language identifiers.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.ports))
	for l := range r.ports {
		langs = append(langs, l)
	}
	return langs
}
