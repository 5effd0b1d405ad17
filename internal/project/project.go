// Package project inspects a repository root for language manifests, so the
// engine can report what it is indexing and seed sensible excludes.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gotoml "github.com/pelletier/go-toml/v2"
)

// Manifest describes one recognized project manifest.
type Manifest struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Name     string `json:"name,omitempty"`
}

// Info summarizes the detected project shape.
type Info struct {
	Root      string     `json:"root"`
	Name      string     `json:"name"`
	Languages []string   `json:"languages"`
	Manifests []Manifest `json:"manifests"`
}

// Detect scans the repository root (top level only) for known manifests.
// A repository without any manifest is still indexable; Detect then reports
// the directory name and no languages.
func Detect(root string) (*Info, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Root: abs,
		Name: filepath.Base(abs),
	}

	checks := []struct {
		file  string
		parse func(path string) (Manifest, bool)
	}{
		{"go.mod", parseGoMod},
		{"package.json", parsePackageJSON},
		{"pyproject.toml", parsePyproject},
		{"Cargo.toml", parseCargoToml},
		{"requirements.txt", func(path string) (Manifest, bool) {
			return Manifest{Path: "requirements.txt", Language: "python"}, true
		}},
	}

	seen := make(map[string]bool)
	for _, c := range checks {
		path := filepath.Join(abs, c.file)
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		m, ok := c.parse(path)
		if !ok {
			continue
		}
		info.Manifests = append(info.Manifests, m)
		if !seen[m.Language] {
			seen[m.Language] = true
			info.Languages = append(info.Languages, m.Language)
		}
		if info.Name == filepath.Base(abs) && m.Name != "" {
			info.Name = m.Name
		}
	}

	sort.Strings(info.Languages)
	return info, nil
}

func parseGoMod(path string) (Manifest, bool) {
	m := Manifest{Path: filepath.Base(path), Language: "go"}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, true
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			m.Name = filepath.Base(strings.TrimSpace(rest))
			break
		}
	}
	return m, true
}

func parsePackageJSON(path string) (Manifest, bool) {
	m := Manifest{Path: filepath.Base(path), Language: "javascript"}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, true
	}
	var pkg struct {
		Name            string            `json:"name"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return m, true
	}
	m.Name = pkg.Name
	if _, ok := pkg.Dependencies["typescript"]; ok {
		m.Language = "typescript"
	}
	if _, ok := pkg.DevDependencies["typescript"]; ok {
		m.Language = "typescript"
	}
	return m, true
}

func parsePyproject(path string) (Manifest, bool) {
	m := Manifest{Path: filepath.Base(path), Language: "python"}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, true
	}
	var doc struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := gotoml.Unmarshal(data, &doc); err != nil {
		return m, true
	}
	if doc.Project.Name != "" {
		m.Name = doc.Project.Name
	} else {
		m.Name = doc.Tool.Poetry.Name
	}
	return m, true
}

// parseCargoToml recognizes Rust manifests for reporting even though the
// indexer has no Rust parser yet.
func parseCargoToml(path string) (Manifest, bool) {
	m := Manifest{Path: filepath.Base(path), Language: "rust"}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, true
	}
	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if err := gotoml.Unmarshal(data, &doc); err != nil {
		return m, true
	}
	m.Name = doc.Package.Name
	return m, true
}
