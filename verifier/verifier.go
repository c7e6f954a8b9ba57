package verifier

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
)

const DefaultMaxAge = time.Hour

var _ core.AttestationValidator = (*Verifier)(nil)

// SignatureVerifier checks an attestation's signature against a trust root.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, attestation *core.TEEAttestation) error
}

// Verifier performs per-platform structural validation of attestations and
// delegates the signature check to a SignatureVerifier.
type Verifier struct {
	log        logging.Logger
	clock      *mockable.Clock
	maxAge     time.Duration
	signatures SignatureVerifier
}

type Option func(*Verifier)

func WithClock(clock *mockable.Clock) Option {
	return func(v *Verifier) {
		v.clock = clock
	}
}

func WithMaxAge(maxAge time.Duration) Option {
	return func(v *Verifier) {
		if maxAge > 0 {
			v.maxAge = maxAge
		}
	}
}

func WithSignatureVerifier(sv SignatureVerifier) Option {
	return func(v *Verifier) {
		v.signatures = sv
	}
}

// New returns a Verifier. Without WithSignatureVerifier it uses
// StructuralSignatureVerifier, which proves nothing about who signed.
func New(log logging.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		log:        log,
		clock:      &mockable.Clock{},
		maxAge:     DefaultMaxAge,
		signatures: StructuralSignatureVerifier{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) Validate(ctx context.Context, a *core.TEEAttestation) error {
	if err := v.validate(ctx, a); err != nil {
		v.log.Debug("rejected attestation", zap.Error(err))
		return err
	}
	return nil
}

func (v *Verifier) validate(ctx context.Context, a *core.TEEAttestation) error {
	if a == nil {
		return ErrNilAttestation
	}

	var measurementSize, signatureSize int
	switch a.Platform {
	case core.PlatformTypeSGX:
		measurementSize, signatureSize = core.SGXMeasurementSize, core.SGXSignatureSize
	case core.PlatformTypeSEV:
		measurementSize, signatureSize = core.SEVMeasurementSize, core.SEVSignatureSize
	default:
		return fmt.Errorf("%w: %w: %d", core.ErrAttestation, core.ErrUnknownPlatform, uint8(a.Platform))
	}

	if allZero(a.Measurement) {
		return ErrEmptyMeasurement
	}
	if len(a.Measurement) != measurementSize {
		return fmt.Errorf("%w: %s got %d, want %d", ErrMeasurementLength, a.Platform, len(a.Measurement), measurementSize)
	}
	if len(a.Signature) != signatureSize {
		return fmt.Errorf("%w: %s got %d, want %d", ErrSignatureLength, a.Platform, len(a.Signature), signatureSize)
	}

	now := v.clock.Time()
	if a.Timestamp.After(now) {
		return fmt.Errorf("%w: %s", ErrFutureTimestamp, a.Timestamp.Sub(now))
	}
	if age := now.Sub(a.Timestamp); age > v.maxAge {
		return fmt.Errorf("%w: age %s exceeds %s", ErrExpired, age, v.maxAge)
	}

	if a.Report != nil {
		if a.Report.Platform() != a.Platform {
			return fmt.Errorf("%w: %s report on %s attestation", ErrReportPlatform, a.Report.Platform(), a.Platform)
		}
		if !bytes.Equal(a.Report.Digest(), a.Measurement) {
			return ErrReportDigest
		}
	}

	return v.signatures.VerifySignature(ctx, a)
}

// allZero is true for empty input as well.
func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// StructuralSignatureVerifier accepts every signature blob that passed the
// structural checks. It is NOT a cryptographic check and must be replaced
// by a real SignatureVerifier before the result can be trusted.
type StructuralSignatureVerifier struct{}

func (StructuralSignatureVerifier) VerifySignature(context.Context, *core.TEEAttestation) error {
	return nil
}
