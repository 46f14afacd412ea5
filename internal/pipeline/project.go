package pipeline

import (
	"fmt"
	"slices"

	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// Project narrows t to the canonical GWAS columns it supports. A missing
// Het_Q is added as a null float64 so every export carries it. Key fields
// never appear in the result, and a table with none of the columns projects
// to zero columns without error.
func Project(t table.Table) (table.Table, []string, error) {
	s := t.Schema()
	available := s.Names()
	key := s.Key

	var nonKey []string
	for _, c := range types.DesiredColumns {
		if slices.Contains(available, c) && !slices.Contains(key, c) {
			nonKey = append(nonKey, c)
		}
	}

	cur, err := t.Select(nonKey...)
	if err != nil {
		return nil, nil, fmt.Errorf("selecting columns: %w", err)
	}

	if !slices.Contains(available, types.ColHetQ) {
		cur, err = cur.AnnotateNull(types.ColHetQ, table.TypeFloat64)
		if err != nil {
			return nil, nil, fmt.Errorf("annotating %s: %w", types.ColHetQ, err)
		}
	}

	// Annotation appends, so order is recomputed from the canonical list.
	row := cur.Schema().Names()
	var ordered []string
	for _, c := range types.DesiredColumns {
		if slices.Contains(row, c) && !slices.Contains(key, c) {
			ordered = append(ordered, c)
		}
	}

	// Unkey before the final select or key fields ride along.
	cur, err = cur.KeyBy()
	if err != nil {
		return nil, nil, fmt.Errorf("clearing key: %w", err)
	}
	cur, err = cur.Select(ordered...)
	if err != nil {
		return nil, nil, fmt.Errorf("ordering columns: %w", err)
	}
	return cur, ordered, nil
}
