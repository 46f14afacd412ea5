package table

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// HailMetadataFile is the table spec stored at the root of every .ht directory.
const HailMetadataFile = "metadata.json.gz"

type hailTableSpec struct {
	Name      string `json:"name"`
	Version   string `json:"hail_version"`
	TableType string `json:"table_type"`
}

// ReadHailMetadata decodes a gzipped Hail table spec and returns its row schema.
func ReadHailMetadata(r io.Reader) (Schema, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return Schema{}, fmt.Errorf("opening %s: %w", HailMetadataFile, err)
	}
	defer func() { _ = zr.Close() }()

	var spec hailTableSpec
	if err := json.NewDecoder(zr).Decode(&spec); err != nil {
		return Schema{}, fmt.Errorf("decoding %s: %w", HailMetadataFile, err)
	}
	if spec.TableType == "" {
		return Schema{}, fmt.Errorf("%s has no table_type", HailMetadataFile)
	}
	return ParseHailTableType(spec.TableType)
}

// ParseHailTableType parses a virtual type string such as
//
//	Table{global:Struct{},key:[locus,alleles],row:Struct{locus:Locus(GRCh38),BETA:Float64}}
func ParseHailTableType(s string) (Schema, error) {
	s = strings.TrimSpace(s)
	body, ok := enclosed(s, "Table{", "}")
	if !ok {
		return Schema{}, fmt.Errorf("not a table type: %q", s)
	}

	var (
		schema  Schema
		haveRow bool
	)
	for _, part := range splitTop(body) {
		name, value, err := splitField(part)
		if err != nil {
			return Schema{}, err
		}
		switch name {
		case "key":
			inner, ok := enclosed(value, "[", "]")
			if !ok {
				return Schema{}, fmt.Errorf("malformed key %q", value)
			}
			for _, k := range splitTop(inner) {
				schema.Key = append(schema.Key, unquote(strings.TrimSpace(k)))
			}
		case "row":
			inner, ok := enclosed(value, "Struct{", "}")
			if !ok {
				return Schema{}, fmt.Errorf("malformed row type %q", value)
			}
			for _, f := range splitTop(inner) {
				fname, ftype, err := splitField(f)
				if err != nil {
					return Schema{}, err
				}
				schema.Fields = append(schema.Fields, Field{Name: fname, Type: Type(strings.TrimPrefix(ftype, "+"))})
			}
			haveRow = true
		}
	}
	if !haveRow {
		return Schema{}, fmt.Errorf("table type has no row: %q", s)
	}
	return schema, nil
}

func enclosed(s, open, close string) (string, bool) {
	if !strings.HasPrefix(s, open) || !strings.HasSuffix(s, close) || len(s) < len(open)+len(close) {
		return "", false
	}
	return s[len(open) : len(s)-len(close)], true
}

// splitTop splits s on commas that are outside brackets and backtick-quoted names.
func splitTop(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		parts  []string
		depth  int
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c == '\\' {
				i++
			} else if c == '`' {
				quoted = false
			}
		case c == '`':
			quoted = true
		case c == '{' || c == '[' || c == '(':
			depth++
		case c == '}' || c == ']' || c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// splitField splits "name:type" where name may be backtick-quoted.
func splitField(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c == '\\' {
				i++
			} else if c == '`' {
				quoted = false
			}
		case c == '`':
			quoted = true
		case c == ':':
			name := unquote(strings.TrimSpace(s[:i]))
			if name == "" {
				return "", "", fmt.Errorf("empty field name in %q", s)
			}
			return name, strings.TrimSpace(s[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("missing ':' in %q", s)
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '`' || s[len(s)-1] != '`' {
		return s
	}
	var b strings.Builder
	inner := s[1 : len(s)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
