package types

import "errors"

// Fatal error kinds. Every failure of a run wraps exactly one of these.
var (
	ErrInvalidArguments         = errors.New("invalid arguments")
	ErrPhenotypeNotFound        = errors.New("phenotype not found")
	ErrMissingWorkspace         = errors.New("missing workspace bucket")
	ErrExportVerificationFailed = errors.New("export verification failed")
)
