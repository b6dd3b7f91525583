package pattern

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"gapscan/internal/graph"
)

// DefaultConfigGlobs match files that carry runtime configuration rather
// than behavior. Matched against the lowercased base name.
var DefaultConfigGlobs = []string{
	"appsettings*",
	"*config*",
	"startup*",
	"program*",
}

// Detector classifies files of a bundle into architectural patterns and
// recognizes configuration files. Both are heuristic; every signal lives in
// the Rules table so adding or tuning one never touches control flow.
type Detector struct {
	rules       []Rule
	configGlobs []glob.Glob
}

// NewDetector compiles the config-file globs. An empty slice falls back to
// DefaultConfigGlobs; an invalid glob is reported, not skipped.
func NewDetector(configGlobs []string) (*Detector, error) {
	if len(configGlobs) == 0 {
		configGlobs = DefaultConfigGlobs
	}
	compiled := make([]glob.Glob, 0, len(configGlobs))
	for _, pattern := range configGlobs {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}
	return &Detector{rules: Rules, configGlobs: compiled}, nil
}

// Detect returns the patterns asserted for one file, sorted by name.
func (d *Detector) Detect(path string, symbols []graph.Symbol) []Pattern {
	fc := buildContext(path, symbols)

	var found []Pattern
	for _, rule := range d.rules {
		hits := 0
		for _, ind := range rule.Indicators {
			if ind.Match(fc) {
				hits++
			}
		}
		if hits >= rule.Threshold {
			found = append(found, rule.Pattern)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found
}

// DetectAll runs Detect over every indexed file of the bundle and returns
// only the files where at least one pattern fired.
func (d *Detector) DetectAll(b *graph.Bundle) map[string][]Pattern {
	out := make(map[string][]Pattern)
	for _, file := range b.Files() {
		if patterns := d.Detect(file, b.Symbols(file)); len(patterns) > 0 {
			out[file] = patterns
		}
	}
	return out
}

// IsConfigFile reports whether the file's lowercased base name matches any
// configured glob.
func (d *Detector) IsConfigFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, g := range d.configGlobs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func buildContext(path string, symbols []graph.Symbol) FileContext {
	fc := FileContext{Path: strings.ToLower(path)}
	for _, sym := range symbols {
		fc.SymbolNames = append(fc.SymbolNames, strings.ToLower(sym.FullName))
		for _, rel := range sym.Relationships {
			fc.RelTargets = append(fc.RelTargets, strings.ToLower(rel.TargetSymbolFullName))
		}
	}
	return fc
}
