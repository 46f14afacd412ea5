// Package types defines the public domain types for gwaspull, the GWAS summary
// statistics extractor.
package types

import "time"

// Canonical GWAS output column names.
const (
	ColLocus               = "locus"
	ColAlleles             = "alleles"
	ColBeta                = "BETA"
	ColSE                  = "SE"
	ColHetQ                = "Het_Q"
	ColPvalue              = "Pvalue"
	ColPvalueLog10         = "Pvalue_log10"
	ColChr                 = "CHR"
	ColPos                 = "POS"
	ColRank                = "rank"
	ColPvalueExpected      = "Pvalue_expected"
	ColPvalueExpectedLog10 = "Pvalue_expected_log10"
)

// DesiredColumns is the canonical, ordered GWAS output schema.
var DesiredColumns = []string{
	ColLocus,
	ColAlleles,
	ColBeta,
	ColSE,
	ColHetQ,
	ColPvalue,
	ColPvalueLog10,
	ColChr,
	ColPos,
	ColRank,
	ColPvalueExpected,
	ColPvalueExpectedLog10,
}

// Params identifies the single result set pulled by one invocation.
type Params struct {
	PhenotypeID string `json:"phenotypeId"`
	Pop         string `json:"pop"`
}

// Outcome is the terminal record of a pull, handed to notification sinks.
type Outcome struct {
	RunID       string       `json:"runId"`
	Level       OutcomeLevel `json:"level"`
	PhenotypeID string       `json:"phenotypeId,omitempty"`
	Pop         string       `json:"pop,omitempty"`
	Message     string       `json:"message"`
	Source      string       `json:"source,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Columns     []string     `json:"columns,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
