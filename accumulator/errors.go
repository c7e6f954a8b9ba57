package accumulator

import (
	"errors"
	"fmt"

	"github.com/rhombus-tech/POC4/core"
)

var (
	ErrAlreadyInitialized = fmt.Errorf("%w: accumulator already initialized", core.ErrInitialization)
	ErrNotInitialized     = fmt.Errorf("%w: accumulator not initialized", core.ErrInitialization)
	ErrInvalidParams      = fmt.Errorf("%w: invalid accumulator parameters", core.ErrConfiguration)
	ErrFull               = errors.New("accumulator full")

	ErrNotRegistered            = fmt.Errorf("%w: executor not registered", core.ErrAttestation)
	ErrStale                    = fmt.Errorf("%w: attestation is stale", core.ErrAttestation)
	ErrMeasurementMismatch      = fmt.Errorf("%w: measurement mismatch", core.ErrAttestation)
	ErrNoWitness                = fmt.Errorf("%w: no witness for executor", core.ErrAttestation)
	ErrInvalidWitness           = fmt.Errorf("%w: invalid witness", core.ErrAttestation)
	ErrInsufficientAttestations = fmt.Errorf("%w: insufficient attestations", core.ErrAttestation)
	ErrMissingAttestation       = fmt.Errorf("%w: result carries no attestation", core.ErrAttestation)

	ErrTimingMismatch   = fmt.Errorf("%w: execution time diverges", core.ErrExecution)
	ErrResourceMismatch = fmt.Errorf("%w: resource usage diverges", core.ErrExecution)
)
