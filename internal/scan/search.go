package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gapscan/internal/graph"
)

// IndexCandidateSearcher scores files against intent keywords using the
// symbols-by-file index: a keyword hit in the file name weighs more than a
// hit in a symbol name. It is the hermetic stand-in for semantic search.
type IndexCandidateSearcher struct {
	Bundle *graph.Bundle
}

const (
	pathMatchWeight   = 3.0
	symbolMatchWeight = 1.0
)

func (s IndexCandidateSearcher) Search(ctx context.Context, intent ChangeIntent, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(intent.Keywords) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	for _, file := range s.Bundle.Files() {
		if c, ok := s.score(file, intent.Keywords); ok {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].FilePath < candidates[j].FilePath
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s IndexCandidateSearcher) score(file string, keywords []string) (Candidate, bool) {
	base := strings.ToLower(filepath.Base(file))
	c := Candidate{FilePath: file}

	for _, keyword := range keywords {
		if strings.Contains(base, keyword) {
			c.Score += pathMatchWeight
			c.Reasons = append(c.Reasons, fmt.Sprintf("file name matches %q", keyword))
		}
	}
	for _, sym := range s.Bundle.Symbols(file) {
		name := strings.ToLower(sym.FullName)
		for _, keyword := range keywords {
			if strings.Contains(name, keyword) {
				c.Score += symbolMatchWeight
				c.Reasons = append(c.Reasons, fmt.Sprintf("symbol %s matches %q", sym.FullName, keyword))
			}
		}
	}
	return c, c.Score > 0
}
