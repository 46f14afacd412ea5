package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dwsmith1983/gwaspull/pkg/types"
)

// SourcePath is the ACAF results table for p under root.
func SourcePath(root string, p types.Params) string {
	return fmt.Sprintf("%s/ACAF/%s/phenotype_%s_ACAF_results.ht", strings.TrimRight(root, "/"), p.Pop, p.PhenotypeID)
}

// DestinationDir is the directory exports land in.
func DestinationDir(bucket string) string {
	return strings.TrimRight(bucket, "/") + "/data/"
}

// DestinationPath is the TSV written for p.
func DestinationPath(bucket string, p types.Params) string {
	return fmt.Sprintf("%s%s_full_%s.tsv", DestinationDir(bucket), p.Pop, p.PhenotypeID)
}

// ValidateParams rejects values that would escape their path segment or be
// expanded as a listing wildcard.
func ValidateParams(p types.Params) error {
	for _, f := range []struct{ flag, value string }{
		{"phecode", p.PhenotypeID},
		{"pop", p.Pop},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: --%s is required", types.ErrInvalidArguments, f.flag)
		}
		if i := strings.IndexFunc(f.value, unsafeRune); i >= 0 {
			return fmt.Errorf("%w: --%s %q contains %q", types.ErrInvalidArguments, f.flag, f.value, f.value[i])
		}
	}
	return nil
}

func unsafeRune(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(`/\*?[]`, r)
}
