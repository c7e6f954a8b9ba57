package verifier

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/ava-labs/hypersdk/codec"
	"github.com/ava-labs/hypersdk/crypto/ed25519"

	"github.com/rhombus-tech/POC4/core"
)

var _ SignatureVerifier = (*Ed25519Verifier)(nil)

// SigningDigest is the message a backend signs: every attestation field
// except the signature itself.
func SigningDigest(a *core.TEEAttestation) []byte {
	p := codec.NewWriter(0, core.MaxDataSize+core.MaxMeasurementSize+core.MaxEnclaveIDSize+64)
	p.PackByte(byte(a.Platform))
	p.PackBytes(a.EnclaveID)
	p.PackBytes(a.Measurement)
	p.PackUint64(uint64(a.Timestamp.Unix()))
	p.PackBytes(a.Data)
	digest := sha256.Sum256(p.Bytes())
	return digest[:]
}

// SignEd25519 fills a.Signature with an ed25519 signature over
// SigningDigest. Platforms whose signature is wider than 64 bytes carry it
// in the leading bytes, zero padded.
func SignEd25519(priv ed25519.PrivateKey, a *core.TEEAttestation) {
	sig := ed25519.Sign(SigningDigest(a), priv)
	size := a.Platform.SignatureSize()
	if size < ed25519.SignatureLen {
		size = ed25519.SignatureLen
	}
	a.Signature = make([]byte, size)
	copy(a.Signature, sig[:])
}

// Ed25519Verifier checks signatures against one trusted key per platform.
// Platforms without a key go to Fallback, or are rejected when it is nil.
type Ed25519Verifier struct {
	Keys     map[core.PlatformType]ed25519.PublicKey
	Fallback SignatureVerifier
}

func (e *Ed25519Verifier) VerifySignature(ctx context.Context, a *core.TEEAttestation) error {
	key, ok := e.Keys[a.Platform]
	if !ok {
		if e.Fallback != nil {
			return e.Fallback.VerifySignature(ctx, a)
		}
		return fmt.Errorf("%w: %s", ErrUntrustedPlatform, a.Platform)
	}
	if len(a.Signature) < ed25519.SignatureLen {
		return ErrInvalidSignature
	}
	for _, b := range a.Signature[ed25519.SignatureLen:] {
		if b != 0 {
			return fmt.Errorf("%w: non-zero padding", ErrInvalidSignature)
		}
	}
	var sig ed25519.Signature
	copy(sig[:], a.Signature[:ed25519.SignatureLen])
	if !ed25519.Verify(SigningDigest(a), key, sig) {
		return ErrInvalidSignature
	}
	return nil
}
