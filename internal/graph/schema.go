package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoGraphData marks a symbol table that is missing, unreadable, or empty.
// Callers degrade to treating candidate files as unconnected instead of
// aborting the run.
var ErrNoGraphData = errors.New("no code graph data")

type SymbolKind string

const (
	KindType   SymbolKind = "type"
	KindMethod SymbolKind = "method"
	KindField  SymbolKind = "field"
	KindOther  SymbolKind = "other"
)

type RelationshipKind string

const (
	RelCalls      RelationshipKind = "calls"
	RelInherits   RelationshipKind = "inherits"
	RelImplements RelationshipKind = "implements"
	RelConfigures RelationshipKind = "configures"
	RelDepends    RelationshipKind = "depends"
	RelOther      RelationshipKind = "other"
)

// Symbol is one entry of the raw symbol table emitted by the external
// indexer. Relationship targets may not exist in the table; dangling
// references are tolerated everywhere.
type Symbol struct {
	FullName      string         `json:"FullName"`
	Kind          SymbolKind     `json:"Kind"`
	FilePath      string         `json:"FilePath"`
	LineNumber    int            `json:"LineNumber"`
	Relationships []Relationship `json:"Relationships,omitempty"`
}

type Relationship struct {
	Kind                 RelationshipKind `json:"Kind"`
	TargetSymbolFullName string           `json:"TargetSymbolFullName"`
}

// SymbolTable is the parsed indexer artifact.
type SymbolTable struct {
	Symbols []Symbol `json:"Symbols"`
}

// Older indexer artifacts encode kinds as integers, newer ones as strings.
// Method=2 and Calls=2 are fixed by the indexer contract; both encodings
// must decode.
var symbolKindByInt = map[int]SymbolKind{
	1: KindType,
	2: KindMethod,
	3: KindField,
}

var relationshipKindByInt = map[int]RelationshipKind{
	1: RelInherits,
	2: RelCalls,
	3: RelImplements,
	4: RelConfigures,
	5: RelDepends,
}

func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch SymbolKind(strings.ToLower(s)) {
		case KindType, KindMethod, KindField:
			*k = SymbolKind(strings.ToLower(s))
		default:
			*k = KindOther
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("symbol kind must be string or integer: %s", data)
	}
	if kind, ok := symbolKindByInt[n]; ok {
		*k = kind
	} else {
		*k = KindOther
	}
	return nil
}

func (k *RelationshipKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch RelationshipKind(strings.ToLower(s)) {
		case RelCalls, RelInherits, RelImplements, RelConfigures, RelDepends:
			*k = RelationshipKind(strings.ToLower(s))
		default:
			*k = RelOther
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("relationship kind must be string or integer: %s", data)
	}
	if kind, ok := relationshipKindByInt[n]; ok {
		*k = kind
	} else {
		*k = RelOther
	}
	return nil
}

// LoadSymbolTable reads an indexer artifact from disk. Any failure maps to
// ErrNoGraphData so the caller can fall back to degraded behavior.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrNoGraphData, path, err)
	}

	var table SymbolTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrNoGraphData, path, err)
	}
	if len(table.Symbols) == 0 {
		return nil, fmt.Errorf("%w: %q contains no symbols", ErrNoGraphData, path)
	}
	return &table, nil
}
