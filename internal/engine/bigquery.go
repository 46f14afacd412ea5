package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dwsmith1983/gwaspull/internal/table"
	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// RowIterator yields query rows; Next returns iterator.Done after the last row.
type RowIterator interface {
	Next(dst interface{}) error
}

// BigQueryAPI is the subset of the BigQuery client used by BigQueryReader.
type BigQueryAPI interface {
	TableSchema(ctx context.Context, datasetID, tableID string) (table.Schema, error)
	Query(ctx context.Context, sql string) (RowIterator, error)
}

// bigqueryClientWrapper wraps the real BigQuery client.
type bigqueryClientWrapper struct {
	client *bigquery.Client
}

func (w *bigqueryClientWrapper) TableSchema(ctx context.Context, datasetID, tableID string) (table.Schema, error) {
	md, err := w.client.Dataset(datasetID).Table(tableID).Metadata(ctx)
	if err != nil {
		return table.Schema{}, err
	}
	var s table.Schema
	for _, f := range md.Schema {
		s.Fields = append(s.Fields, table.Field{Name: f.Name, Type: bqFieldType(f)})
	}
	if tc := md.TableConstraints; tc != nil && tc.PrimaryKey != nil {
		s.Key = append(s.Key, tc.PrimaryKey.Columns...)
	}
	return s, nil
}

func (w *bigqueryClientWrapper) Query(ctx context.Context, sql string) (RowIterator, error) {
	it, err := w.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// bqFieldType maps a BigQuery column to the Hail-style type names used by table.
func bqFieldType(f *bigquery.FieldSchema) table.Type {
	var t table.Type
	switch f.Type {
	case bigquery.FloatFieldType:
		t = table.TypeFloat64
	case bigquery.IntegerFieldType:
		t = table.TypeInt64
	case bigquery.StringFieldType:
		t = table.TypeString
	case bigquery.BooleanFieldType:
		t = table.TypeBool
	case bigquery.RecordFieldType:
		t = "Struct"
	default:
		t = table.Type(f.Type)
	}
	if f.Repeated {
		return "Array[" + t + "]"
	}
	return t
}

// sqlType is the BigQuery type used when casting a typed null.
func sqlType(t table.Type) (string, error) {
	switch t {
	case table.TypeFloat64, table.TypeFloat32:
		return "FLOAT64", nil
	case table.TypeInt32, table.TypeInt64:
		return "INT64", nil
	case table.TypeString:
		return "STRING", nil
	case table.TypeBool:
		return "BOOL", nil
	default:
		return "", fmt.Errorf("no BigQuery type for %s", t)
	}
}

var invalidTableChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableID renders a table template with the pull parameters. Characters that
// BigQuery does not allow in table names become underscores.
func TableID(template string, p types.Params) string {
	if template == "" {
		template = types.DefaultBigQueryTableTemplate
	}
	id := strings.NewReplacer("{pop}", p.Pop, "{phecode}", p.PhenotypeID).Replace(template)
	return invalidTableChars.ReplaceAllString(id, "_")
}

// BigQueryReader serves GWAS tables mirrored into BigQuery. Exports stream
// query results to the destination through the object store.
type BigQueryReader struct {
	cfg    types.BigQueryConfig
	client BigQueryAPI
	sink   table.Sink
	logger *slog.Logger
}

// NewBigQueryReader creates a BigQueryReader, dialing BigQuery unless a client is given.
func NewBigQueryReader(ctx context.Context, cfg types.BigQueryConfig, sink table.Sink, opts ...Option) (*BigQueryReader, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, fmt.Errorf("bigquery engine: projectId and datasetId are required")
	}
	o := newOptions(opts)
	if o.bigquery == nil {
		client, err := bigquery.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating BigQuery client: %w", err)
		}
		o.bigquery = &bigqueryClientWrapper{client: client}
	}
	return &BigQueryReader{cfg: cfg, client: o.bigquery, sink: sink, logger: o.logger}, nil
}

// Open resolves the BigQuery table for src and reads its schema.
func (r *BigQueryReader) Open(ctx context.Context, src Source) (table.Table, error) {
	tableID := TableID(r.cfg.TableTemplate, src.Params)
	schema, err := r.client.TableSchema(ctx, r.cfg.DatasetID, tableID)
	if err != nil {
		return nil, fmt.Errorf("reading bigquery table %s.%s: %w", r.cfg.DatasetID, tableID, err)
	}
	fq := fmt.Sprintf("%s.%s.%s", r.cfg.ProjectID, r.cfg.DatasetID, tableID)
	r.logger.Debug("opened bigquery table", "table", fq, "mirrors", src.URI, "fields", len(schema.Fields))
	return table.New(fq, schema, r)
}

// BuildQuery renders the plan as a single SELECT. Rows are ordered by the
// source key, or by every output column when the source is unkeyed. Arrays
// and records are not orderable in BigQuery and sort by their JSON text.
func BuildQuery(p *table.Plan) (string, error) {
	cols := p.Columns()
	exprs := make([]string, 0, len(cols))
	var order []string
	for _, c := range cols {
		if c.Null {
			t, err := sqlType(c.Type)
			if err != nil {
				return "", fmt.Errorf("column %s: %w", c.Name, err)
			}
			exprs = append(exprs, fmt.Sprintf("CAST(NULL AS %s) AS %s", t, quoteIdent(c.Name)))
			continue
		}
		if c.Source == c.Name {
			exprs = append(exprs, quoteIdent(c.Name))
		} else {
			exprs = append(exprs, quoteIdent(c.Source)+" AS "+quoteIdent(c.Name))
		}
		order = append(order, orderExpr(c.Source, c.Type))
	}
	if base := p.Base(); len(base.Key) > 0 {
		order = order[:0]
		for _, k := range base.Key {
			order = append(order, orderExpr(k, fieldType(base, k)))
		}
	}

	selectList := "1 AS _unused"
	if len(exprs) > 0 {
		selectList = strings.Join(exprs, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList, quoteIdent(p.Source()))
	if len(order) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	}
	return b.String(), nil
}

func orderExpr(name string, t table.Type) string {
	s := string(t)
	if strings.HasPrefix(s, "Array[") || strings.HasPrefix(s, "Struct") {
		return "TO_JSON_STRING(" + quoteIdent(name) + ")"
	}
	return quoteIdent(name)
}

func fieldType(s table.Schema, name string) table.Type {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return ""
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "\\`") + "`"
}

// Materialize runs the query and writes every row as TSV to dest.
func (r *BigQueryReader) Materialize(ctx context.Context, p *table.Plan, dest string) error {
	sql, err := BuildQuery(p)
	if err != nil {
		return err
	}
	r.logger.Debug("running bigquery export", "query", sql)
	it, err := r.client.Query(ctx, sql)
	if err != nil {
		return fmt.Errorf("bigquery: query failed: %w", err)
	}

	cols := p.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	w, err := r.sink.Create(ctx, dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	tw, err := table.NewTSVWriter(w, header)
	if err != nil {
		table.Abort(w)
		return err
	}

	rows := 0
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			table.Abort(w)
			return fmt.Errorf("bigquery: reading row %d: %w", rows, err)
		}
		values := make([]any, len(header))
		for i := range values {
			if i < len(row) {
				values[i] = plainValue(row[i])
			}
		}
		if err := tw.Write(values); err != nil {
			table.Abort(w)
			return err
		}
		rows++
	}
	if err := tw.Flush(); err != nil {
		table.Abort(w)
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	r.logger.Info("bigquery export finished", "destination", dest, "rows", rows)
	return nil
}

// plainValue unwraps nested bigquery.Value slices so arrays render as JSON.
func plainValue(v bigquery.Value) any {
	switch x := v.(type) {
	case []bigquery.Value:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	default:
		return x
	}
}
