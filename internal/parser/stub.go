//go:build !cgo

package parser

// TreeSitterAvailable reports whether tree-sitter parsers are compiled in.
// Without cgo the registry keeps the regex parsers.
func TreeSitterAvailable() bool { return false }

func newTreeSitterPorts() []Port { return nil }
