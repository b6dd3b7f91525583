package graph

import (
	"encoding/json"
	"reflect"
	"testing"
)

func sampleTable() *SymbolTable {
	return &SymbolTable{
		Symbols: []Symbol{
			{
				FullName: "App.OrderService.Place", Kind: KindMethod,
				FilePath: "OrderService.cs", LineNumber: 42,
				Relationships: []Relationship{
					{Kind: RelCalls, TargetSymbolFullName: "App.PaymentGateway.Charge"},
					{Kind: RelCalls, TargetSymbolFullName: "App.Missing.Symbol"},
				},
			},
			{
				FullName: "App.OrderService", Kind: KindType,
				FilePath: "OrderService.cs", LineNumber: 10,
				Relationships: []Relationship{
					{Kind: RelDepends, TargetSymbolFullName: "App.PaymentGateway"},
				},
			},
			{
				FullName: "App.PaymentGateway", Kind: KindType,
				FilePath: "PaymentGateway.cs", LineNumber: 5,
			},
			{
				FullName: "App.PaymentGateway.Charge", Kind: KindMethod,
				FilePath: "PaymentGateway.cs", LineNumber: 20,
			},
			{
				FullName: "App.Orphan", Kind: KindType,
				FilePath: "Orphan.cs", LineNumber: 1,
			},
		},
	}
}

func TestBuildBundle_FileGraph(t *testing.T) {
	b := BuildBundle(sampleTable())

	if !b.FileGraph.HasEdge("OrderService.cs", "PaymentGateway.cs") {
		t.Error("expected file dependency OrderService.cs -> PaymentGateway.cs")
	}
	// Two qualifying relationships between the same file pair collapse to
	// one edge.
	if got := b.FileGraph.EdgeCount(); got != 1 {
		t.Errorf("expected 1 deduplicated file edge, got %d", got)
	}
	// A file with no cross-file relationships stays out of the dependency
	// graph but remains in the index.
	if b.FileGraph.HasNode("Orphan.cs") {
		t.Error("orphan file must not appear in the file graph")
	}
	if _, ok := b.SymbolsByFile["Orphan.cs"]; !ok {
		t.Error("orphan file must appear in the symbols-by-file index")
	}
}

func TestBuildBundle_FileGraphNodesAreIndexed(t *testing.T) {
	b := BuildBundle(sampleTable())

	for _, node := range b.FileGraph.Nodes() {
		if _, ok := b.SymbolsByFile[node]; !ok {
			t.Errorf("file graph node %q missing from symbols-by-file index", node)
		}
	}
	for _, from := range b.FileGraph.Nodes() {
		for _, to := range b.FileGraph.Successors(from) {
			if from == to {
				t.Errorf("self edge on %q", from)
			}
		}
	}
}

func TestBuildBundle_CallGraph(t *testing.T) {
	b := BuildBundle(sampleTable())

	if !b.CallGraph.HasEdge("App.OrderService.Place", "App.PaymentGateway.Charge") {
		t.Error("expected call edge Place -> Charge")
	}
	// Dangling call targets are tolerated but not projected into the call
	// graph (both endpoints must be known methods).
	if b.CallGraph.HasEdge("App.OrderService.Place", "App.Missing.Symbol") {
		t.Error("dangling target must not produce a call edge")
	}
	// Type-to-type depends edges stay out of the call graph.
	if b.CallGraph.HasNode("App.OrderService") {
		t.Error("non-method symbol must not be a call graph node")
	}
}

func TestBuildBundle_SymbolGraphKeepsDanglingTargets(t *testing.T) {
	b := BuildBundle(sampleTable())

	if !b.SymbolGraph.HasEdge("App.OrderService.Place", "App.Missing.Symbol") {
		t.Error("symbol graph should record edges to dangling targets")
	}
	label, ok := b.SymbolGraph.EdgeLabel("App.OrderService", "App.PaymentGateway")
	if !ok || label != string(RelDepends) {
		t.Errorf("expected depends label, got %q ok=%v", label, ok)
	}
}

func TestBuildBundle_IndexOrderedByLine(t *testing.T) {
	b := BuildBundle(sampleTable())

	syms := b.Symbols("OrderService.cs")
	if len(syms) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms))
	}
	if syms[0].FullName != "App.OrderService" || syms[1].FullName != "App.OrderService.Place" {
		t.Errorf("symbols not ordered by line number: %v, %v", syms[0].FullName, syms[1].FullName)
	}
}

func TestBuildBundle_Idempotent(t *testing.T) {
	b1 := BuildBundle(sampleTable())
	b2 := BuildBundle(sampleTable())

	if !reflect.DeepEqual(b1.SymbolGraph.Nodes(), b2.SymbolGraph.Nodes()) {
		t.Error("symbol graph node sets differ between builds")
	}
	if !reflect.DeepEqual(b1.FileGraph.Nodes(), b2.FileGraph.Nodes()) {
		t.Error("file graph node sets differ between builds")
	}
	for _, n := range b1.FileGraph.Nodes() {
		if !reflect.DeepEqual(b1.FileGraph.Successors(n), b2.FileGraph.Successors(n)) {
			t.Errorf("successors of %q differ between builds", n)
		}
	}
	if b1.SymbolGraph.EdgeCount() != b2.SymbolGraph.EdgeCount() {
		t.Error("symbol graph edge counts differ between builds")
	}
}

func TestSymbolKind_DecodesStringsAndIntegers(t *testing.T) {
	var tbl SymbolTable
	raw := `{"Symbols": [
		{"FullName": "A.M", "Kind": 2, "FilePath": "a.cs", "LineNumber": 1,
		 "Relationships": [{"Kind": 2, "TargetSymbolFullName": "B.N"}]},
		{"FullName": "B.N", "Kind": "Method", "FilePath": "b.cs", "LineNumber": 1,
		 "Relationships": [{"Kind": "Inherits", "TargetSymbolFullName": "C"}]},
		{"FullName": "C", "Kind": 99, "FilePath": "c.cs", "LineNumber": 1}
	]}`
	if err := json.Unmarshal([]byte(raw), &tbl); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if tbl.Symbols[0].Kind != KindMethod {
		t.Errorf("integer kind 2 should decode as method, got %q", tbl.Symbols[0].Kind)
	}
	if tbl.Symbols[0].Relationships[0].Kind != RelCalls {
		t.Errorf("integer relationship kind 2 should decode as calls, got %q", tbl.Symbols[0].Relationships[0].Kind)
	}
	if tbl.Symbols[1].Kind != KindMethod {
		t.Errorf("string kind should decode case-insensitively, got %q", tbl.Symbols[1].Kind)
	}
	if tbl.Symbols[1].Relationships[0].Kind != RelInherits {
		t.Errorf("string relationship kind should decode, got %q", tbl.Symbols[1].Relationships[0].Kind)
	}
	if tbl.Symbols[2].Kind != KindOther {
		t.Errorf("unknown integer kind should decode as other, got %q", tbl.Symbols[2].Kind)
	}
}
