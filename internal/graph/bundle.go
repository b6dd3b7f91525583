package graph

import (
	"sort"
	"time"

	"gapscan/internal/shared/observability"
)

// Bundle is the set of graph views derived from one symbol table. It is
// immutable once built; the cache hands the same instance to every caller.
type Bundle struct {
	// SymbolGraph has a node per symbol full name and one edge per
	// relationship, labeled with the relationship kind.
	SymbolGraph *Digraph

	// CallGraph restricts the symbol graph to method symbols connected by
	// calls relationships.
	CallGraph *Digraph

	// FileGraph holds deduplicated cross-file edges: file A depends on
	// file B when any symbol in A references a symbol owned by B.
	FileGraph *Digraph

	// SymbolsByFile indexes symbols by owning file, ordered by line number.
	SymbolsByFile map[string][]Symbol

	ownerOf map[string]string     // symbol full name -> owning file
	kindOf  map[string]SymbolKind // symbol full name -> kind
}

// BuildBundle derives all graph views from a symbol table. Iteration is
// deterministic: the same table always yields identical node and edge sets.
func BuildBundle(table *SymbolTable) *Bundle {
	started := time.Now()

	b := &Bundle{
		SymbolGraph:   NewDigraph(),
		CallGraph:     NewDigraph(),
		FileGraph:     NewDigraph(),
		SymbolsByFile: make(map[string][]Symbol),
		ownerOf:       make(map[string]string, len(table.Symbols)),
		kindOf:        make(map[string]SymbolKind, len(table.Symbols)),
	}

	// First pass: ownership index and per-file grouping. Later duplicates
	// of a full name do not displace the first owner.
	for _, sym := range table.Symbols {
		if sym.FullName == "" || sym.FilePath == "" {
			continue
		}
		if _, ok := b.ownerOf[sym.FullName]; !ok {
			b.ownerOf[sym.FullName] = sym.FilePath
			b.kindOf[sym.FullName] = sym.Kind
		}
		b.SymbolsByFile[sym.FilePath] = append(b.SymbolsByFile[sym.FilePath], sym)
	}

	for path := range b.SymbolsByFile {
		syms := b.SymbolsByFile[path]
		sort.SliceStable(syms, func(i, j int) bool {
			if syms[i].LineNumber != syms[j].LineNumber {
				return syms[i].LineNumber < syms[j].LineNumber
			}
			return syms[i].FullName < syms[j].FullName
		})
	}

	// Second pass: edges. Dangling relationship targets still become
	// symbol-graph nodes, but never file-graph edges (no known owner).
	for _, sym := range table.Symbols {
		if sym.FullName == "" {
			continue
		}
		b.SymbolGraph.AddNode(sym.FullName)
		if sym.Kind == KindMethod {
			b.CallGraph.AddNode(sym.FullName)
		}

		for _, rel := range sym.Relationships {
			if rel.TargetSymbolFullName == "" {
				continue
			}
			b.SymbolGraph.AddEdge(sym.FullName, rel.TargetSymbolFullName, string(rel.Kind))

			if sym.Kind == KindMethod && rel.Kind == RelCalls {
				if b.kindOf[rel.TargetSymbolFullName] == KindMethod {
					b.CallGraph.AddEdge(sym.FullName, rel.TargetSymbolFullName, string(RelCalls))
				}
			}

			targetFile, ok := b.ownerOf[rel.TargetSymbolFullName]
			if !ok || targetFile == sym.FilePath || sym.FilePath == "" {
				continue
			}
			b.FileGraph.AddEdge(sym.FilePath, targetFile, string(rel.Kind))
		}
	}

	observability.BundleBuildDuration.Observe(time.Since(started).Seconds())
	observability.GraphNodes.WithLabelValues("symbol").Set(float64(b.SymbolGraph.NodeCount()))
	observability.GraphEdges.WithLabelValues("symbol").Set(float64(b.SymbolGraph.EdgeCount()))
	observability.GraphNodes.WithLabelValues("call").Set(float64(b.CallGraph.NodeCount()))
	observability.GraphEdges.WithLabelValues("call").Set(float64(b.CallGraph.EdgeCount()))
	observability.GraphNodes.WithLabelValues("file").Set(float64(b.FileGraph.NodeCount()))
	observability.GraphEdges.WithLabelValues("file").Set(float64(b.FileGraph.EdgeCount()))

	return b
}

// OwnerOf resolves the file owning a symbol. The second return is false for
// dangling references.
func (b *Bundle) OwnerOf(symbolFullName string) (string, bool) {
	file, ok := b.ownerOf[symbolFullName]
	return file, ok
}

// Files returns all indexed file paths in sorted order.
func (b *Bundle) Files() []string {
	out := make([]string, 0, len(b.SymbolsByFile))
	for path := range b.SymbolsByFile {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Symbols returns the symbols owned by a file, ordered by line number.
func (b *Bundle) Symbols(file string) []Symbol {
	return b.SymbolsByFile[file]
}

// Methods returns the method symbols owned by a file.
func (b *Bundle) Methods(file string) []Symbol {
	var out []Symbol
	for _, sym := range b.SymbolsByFile[file] {
		if sym.Kind == KindMethod {
			out = append(out, sym)
		}
	}
	return out
}
