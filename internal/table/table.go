// Package table models a keyed, column-oriented GWAS relation as a lazy plan.
//
// A Table never holds the source rows itself: Select, AnnotateNull and KeyBy
// append operations to an immutable Plan, and Export hands the plan to an
// engine-specific Materializer that evaluates it next to the data.
package table

import (
	"context"
	"fmt"
	"io"
	"slices"
)

// Type is a column type in Hail notation, e.g. "Float64" or "Array[String]".
type Type string

// Column types used by the projector and the engines.
const (
	TypeFloat64 Type = "Float64"
	TypeFloat32 Type = "Float32"
	TypeInt32   Type = "Int32"
	TypeInt64   Type = "Int64"
	TypeString  Type = "String"
	TypeBool    Type = "Boolean"
)

// Field is a named, typed column.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is the row layout of a table. Key fields are also row fields.
type Schema struct {
	Fields []Field
	Key    []string
}

// Names returns the row field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether name is a row field.
func (s Schema) Has(name string) bool {
	return slices.ContainsFunc(s.Fields, func(f Field) bool { return f.Name == name })
}

// IsKey reports whether name is part of the key.
func (s Schema) IsKey(name string) bool {
	return slices.Contains(s.Key, name)
}

// Table is a read-only relation. Every transformation returns a new Table and
// leaves the receiver untouched.
type Table interface {
	// Source is the location the table was opened from.
	Source() string
	// Schema is the row layout after all planned operations.
	Schema() Schema
	// Select keeps the key fields plus the named non-key fields, in that order.
	Select(names ...string) (Table, error)
	// AnnotateNull sets name to a typed missing value on every row, appending
	// the field if it does not exist yet.
	AnnotateNull(name string, typ Type) (Table, error)
	// KeyBy rekeys the table; with no arguments the key is cleared.
	KeyBy(keys ...string) (Table, error)
	// Export writes the table as TSV to dest.
	Export(ctx context.Context, dest string) error
}

// Materializer evaluates a plan against the data and writes the TSV result.
type Materializer interface {
	Materialize(ctx context.Context, p *Plan, dest string) error
}

// Sink opens destination objects for writing.
type Sink interface {
	Create(ctx context.Context, uri string) (io.WriteCloser, error)
}

// Aborter is implemented by writers that can drop an unfinished object
// instead of publishing it on Close.
type Aborter interface {
	Abort() error
}

// Abort discards w. Writers without an Abort method are closed.
func Abort(w io.WriteCloser) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// New returns a lazy Table over source whose rows are produced by m.
func New(source string, s Schema, m Materializer) (Table, error) {
	p, err := NewPlan(source, s)
	if err != nil {
		return nil, err
	}
	return &lazyTable{plan: p, m: m}, nil
}

type lazyTable struct {
	plan *Plan
	m    Materializer
}

func (t *lazyTable) Source() string { return t.plan.source }

func (t *lazyTable) Schema() Schema { return t.plan.Schema() }

func (t *lazyTable) Select(names ...string) (Table, error) {
	p, err := t.plan.Select(names...)
	if err != nil {
		return nil, err
	}
	return &lazyTable{plan: p, m: t.m}, nil
}

func (t *lazyTable) AnnotateNull(name string, typ Type) (Table, error) {
	p, err := t.plan.AnnotateNull(name, typ)
	if err != nil {
		return nil, err
	}
	return &lazyTable{plan: p, m: t.m}, nil
}

func (t *lazyTable) KeyBy(keys ...string) (Table, error) {
	p, err := t.plan.KeyBy(keys...)
	if err != nil {
		return nil, err
	}
	return &lazyTable{plan: p, m: t.m}, nil
}

func (t *lazyTable) Export(ctx context.Context, dest string) error {
	if dest == "" {
		return fmt.Errorf("export destination is empty")
	}
	if err := t.m.Materialize(ctx, t.plan, dest); err != nil {
		return fmt.Errorf("exporting %s: %w", t.plan.source, err)
	}
	return nil
}
