package verifier

import (
	"fmt"

	"github.com/rhombus-tech/POC4/core"
)

var (
	ErrNilAttestation    = fmt.Errorf("%w: nil attestation", core.ErrAttestation)
	ErrEmptyMeasurement  = fmt.Errorf("%w: empty measurement", core.ErrAttestation)
	ErrMeasurementLength = fmt.Errorf("%w: measurement length", core.ErrAttestation)
	ErrSignatureLength   = fmt.Errorf("%w: signature length", core.ErrAttestation)
	ErrFutureTimestamp   = fmt.Errorf("%w: timestamp in the future", core.ErrAttestation)
	ErrExpired           = fmt.Errorf("%w: attestation expired", core.ErrAttestation)
	ErrReportPlatform    = fmt.Errorf("%w: report platform differs from attestation", core.ErrAttestation)
	ErrReportDigest      = fmt.Errorf("%w: report digest differs from measurement", core.ErrAttestation)
	ErrInvalidSignature  = fmt.Errorf("%w: invalid signature", core.ErrAttestation)
	ErrUntrustedPlatform = fmt.Errorf("%w: no trusted key for platform", core.ErrAttestation)
)
