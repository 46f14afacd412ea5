package table

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Missing is how a null value is rendered in exported files.
const Missing = "NA"

// Locus is a genomic position, rendered as contig:position.
type Locus struct {
	Contig   string
	Position int64
}

func (l Locus) String() string {
	return l.Contig + ":" + strconv.FormatInt(l.Position, 10)
}

// TSVWriter writes a header line followed by one tab-separated line per row.
type TSVWriter struct {
	w    *bufio.Writer
	cols int
}

// NewTSVWriter writes the header immediately.
func NewTSVWriter(w io.Writer, header []string) (*TSVWriter, error) {
	tw := &TSVWriter{w: bufio.NewWriter(w), cols: len(header)}
	if err := tw.line(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return tw, nil
}

// Write renders values with FormatValue.
func (tw *TSVWriter) Write(values []any) error {
	if len(values) != tw.cols {
		return fmt.Errorf("row has %d values, header has %d columns", len(values), tw.cols)
	}
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = FormatValue(v)
	}
	return tw.line(cells)
}

// Flush must be called once all rows are written.
func (tw *TSVWriter) Flush() error { return tw.w.Flush() }

func (tw *TSVWriter) line(cells []string) error {
	if _, err := tw.w.WriteString(strings.Join(cells, "\t")); err != nil {
		return err
	}
	return tw.w.WriteByte('\n')
}

// FormatValue renders a single cell. Nulls become Missing, arrays become JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return Missing
	case string:
		return x
	case *float64:
		if x == nil {
			return Missing
		}
		return formatFloat(*x, 64)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case Locus:
		return x.String()
	case []string, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
