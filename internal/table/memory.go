package table

import (
	"context"
	"fmt"
)

// Row maps field names to values.
type Row map[string]any

// NewMemory returns a Table over rows held in memory. Export writes through
// sink and keeps the row order given here.
func NewMemory(source string, s Schema, rows []Row, sink Sink) (Table, error) {
	return New(source, s, &memMaterializer{rows: rows, sink: sink})
}

type memMaterializer struct {
	rows []Row
	sink Sink
}

func (m *memMaterializer) Materialize(ctx context.Context, p *Plan, dest string) error {
	cols := p.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}

	w, err := m.sink.Create(ctx, dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	tw, err := NewTSVWriter(w, header)
	if err != nil {
		Abort(w)
		return err
	}
	values := make([]any, len(cols))
	for i, row := range m.rows {
		if err := ctx.Err(); err != nil {
			Abort(w)
			return err
		}
		for j, c := range cols {
			if c.Null {
				values[j] = nil
				continue
			}
			values[j] = row[c.Source]
		}
		if err := tw.Write(values); err != nil {
			Abort(w)
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := tw.Flush(); err != nil {
		Abort(w)
		return err
	}
	return w.Close()
}
