package tee

import (
	"fmt"

	"github.com/rhombus-tech/POC4/core"
)

var (
	ErrNilBackend         = fmt.Errorf("%w: backend is nil", core.ErrConfiguration)
	ErrSamePlatform       = fmt.Errorf("%w: paired backends must run on different platforms", core.ErrConfiguration)
	ErrMissingAttestation = fmt.Errorf("%w: backend returned no attestation", core.ErrAttestation)
	ErrNotMember          = fmt.Errorf("%w: executor membership rejected", core.ErrAttestation)
	ErrPlatformMismatch   = fmt.Errorf("%w: attestation platform differs from backend", core.ErrAttestation)
	ErrProcessFailed      = fmt.Errorf("%w: backend process failed", core.ErrExecution)
	ErrInvalidInput       = fmt.Errorf("%w: invalid job input", core.ErrExecution)
	ErrUnknownFunction    = fmt.Errorf("%w: unknown function", core.ErrExecution)
)
