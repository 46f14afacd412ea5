package table

import (
	"fmt"
	"slices"
)

// OpKind names a planned table operation.
type OpKind string

// OpKind values.
const (
	OpSelect       OpKind = "select"
	OpAnnotateNull OpKind = "annotate_null"
	OpKeyBy        OpKind = "key_by"
)

// Op is one planned operation. Its JSON form is what remote engines replay.
type Op struct {
	Kind   OpKind   `json:"op"`
	Fields []string `json:"fields,omitempty"`
	Field  *Field   `json:"field,omitempty"`
}

// Column is a resolved output column: either a source field or a typed null.
type Column struct {
	Field
	Source string // source field name; empty when Null
	Null   bool
}

// Plan is the immutable result of applying Ops to a base schema.
type Plan struct {
	source  string
	base    Schema
	ops     []Op
	columns []Column
	key     []string
}

// NewPlan validates s and returns an empty plan over it.
func NewPlan(source string, s Schema) (*Plan, error) {
	seen := make(map[string]bool, len(s.Fields))
	cols := make([]Column, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("table %s: empty field name", source)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("table %s: duplicate field %q", source, f.Name)
		}
		seen[f.Name] = true
		cols = append(cols, Column{Field: f, Source: f.Name})
	}
	for _, k := range s.Key {
		if !seen[k] {
			return nil, fmt.Errorf("table %s: key field %q is not a row field", source, k)
		}
	}
	return &Plan{
		source:  source,
		base:    Schema{Fields: slices.Clone(s.Fields), Key: slices.Clone(s.Key)},
		columns: cols,
		key:     slices.Clone(s.Key),
	}, nil
}

// Source is the table location.
func (p *Plan) Source() string { return p.source }

// Base is the schema of the unmodified source table.
func (p *Plan) Base() Schema { return p.base }

// Ops returns the planned operations in application order.
func (p *Plan) Ops() []Op { return slices.Clone(p.ops) }

// Columns returns the resolved output columns.
func (p *Plan) Columns() []Column { return slices.Clone(p.columns) }

// Key returns the current key.
func (p *Plan) Key() []string { return slices.Clone(p.key) }

// Schema returns the row layout after all operations.
func (p *Plan) Schema() Schema {
	fields := make([]Field, len(p.columns))
	for i, c := range p.columns {
		fields[i] = c.Field
	}
	return Schema{Fields: fields, Key: p.Key()}
}

func (p *Plan) column(name string) (Column, bool) {
	for _, c := range p.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (p *Plan) with(op Op, cols []Column, key []string) *Plan {
	return &Plan{
		source:  p.source,
		base:    p.base,
		ops:     append(slices.Clone(p.ops), op),
		columns: cols,
		key:     key,
	}
}

// Select keeps the key columns followed by names.
func (p *Plan) Select(names ...string) (*Plan, error) {
	cols := make([]Column, 0, len(p.key)+len(names))
	for _, k := range p.key {
		c, _ := p.column(k)
		cols = append(cols, c)
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if slices.Contains(p.key, n) {
			return nil, fmt.Errorf("select: %q is a key field", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("select: duplicate field %q", n)
		}
		seen[n] = true
		c, ok := p.column(n)
		if !ok {
			return nil, fmt.Errorf("select: unknown field %q", n)
		}
		cols = append(cols, c)
	}
	return p.with(Op{Kind: OpSelect, Fields: slices.Clone(names)}, cols, p.Key()), nil
}

// AnnotateNull replaces name with a typed null, or appends it when absent.
func (p *Plan) AnnotateNull(name string, typ Type) (*Plan, error) {
	if name == "" {
		return nil, fmt.Errorf("annotate: empty field name")
	}
	if slices.Contains(p.key, name) {
		return nil, fmt.Errorf("annotate: %q is a key field", name)
	}
	f := Field{Name: name, Type: typ}
	null := Column{Field: f, Null: true}
	cols := p.Columns()
	if i := slices.IndexFunc(cols, func(c Column) bool { return c.Name == name }); i >= 0 {
		cols[i] = null
	} else {
		cols = append(cols, null)
	}
	return p.with(Op{Kind: OpAnnotateNull, Field: &f}, cols, p.Key()), nil
}

// KeyBy sets the key to keys; no keys clears it.
func (p *Plan) KeyBy(keys ...string) (*Plan, error) {
	for _, k := range keys {
		if _, ok := p.column(k); !ok {
			return nil, fmt.Errorf("key_by: unknown field %q", k)
		}
	}
	return p.with(Op{Kind: OpKeyBy, Fields: slices.Clone(keys)}, p.Columns(), slices.Clone(keys)), nil
}
