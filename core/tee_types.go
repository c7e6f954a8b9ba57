package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ava-labs/hypersdk/codec"
)

const (
	MaxEnclaveIDSize   = 256
	MaxMeasurementSize = 1024
	MaxSignatureSize   = 4096
	MaxDataSize        = 1 << 20
)

// PlatformReport is the platform-specific identity block of an attestation.
// Exactly two variants exist, SGXReport and SEVReport.
type PlatformReport interface {
	Platform() PlatformType
	Digest() []byte
	Marshal(p *codec.Packer)
}

type TEEAttestation struct {
	Platform    PlatformType   `json:"platform"`
	EnclaveID   []byte         `json:"enclave_id"`
	Measurement []byte         `json:"measurement"`
	Signature   []byte         `json:"signature"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        []byte         `json:"data,omitempty"`
	Report      PlatformReport `json:"-"`
}

// Marshal implements codec.Marshaler
func (t *TEEAttestation) Marshal(p *codec.Packer) {
	p.PackByte(byte(t.Platform))
	p.PackBytes(t.EnclaveID)
	p.PackBytes(t.Measurement)
	p.PackBytes(t.Signature)
	// Unix seconds, matching every other timestamp in the store
	p.PackUint64(uint64(t.Timestamp.Unix()))
	p.PackBytes(t.Data)
	if t.Report == nil {
		p.PackByte(0)
		return
	}
	p.PackByte(byte(t.Report.Platform()))
	t.Report.Marshal(p)
}

func (t *TEEAttestation) Unmarshal(p *codec.Packer) {
	t.Platform = PlatformType(p.UnpackByte())
	p.UnpackBytes(MaxEnclaveIDSize, false, &t.EnclaveID)
	p.UnpackBytes(MaxMeasurementSize, false, &t.Measurement)
	p.UnpackBytes(MaxSignatureSize, false, &t.Signature)
	epochSec := p.UnpackUint64(false)
	t.Timestamp = time.Unix(int64(epochSec), 0).UTC()
	p.UnpackBytes(MaxDataSize, false, &t.Data)
	switch PlatformType(p.UnpackByte()) {
	case PlatformTypeSGX:
		r := &SGXReport{}
		r.Unmarshal(p)
		t.Report = r
	case PlatformTypeSEV:
		r := &SEVReport{}
		r.Unmarshal(p)
		t.Report = r
	default:
		t.Report = nil
	}
}

func (t *TEEAttestation) Bytes() ([]byte, error) {
	if len(t.EnclaveID) > MaxEnclaveIDSize || len(t.Measurement) > MaxMeasurementSize ||
		len(t.Signature) > MaxSignatureSize || len(t.Data) > MaxDataSize {
		return nil, fmt.Errorf("%w: field exceeds encoding limit", ErrAttestation)
	}
	p := codec.NewWriter(t.size(), t.size())
	t.Marshal(p)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

func ParseTEEAttestation(b []byte) (*TEEAttestation, error) {
	p := codec.NewReader(b, len(b))
	t := &TEEAttestation{}
	t.Unmarshal(p)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TEEAttestation) size() int {
	n := 1 + 4*4 + len(t.EnclaveID) + len(t.Measurement) + len(t.Signature) + len(t.Data) + 8 + 1
	// reports are at most two 48-byte digests plus two integers
	return n + 128
}

func (t *TEEAttestation) Equal(other *TEEAttestation) bool {
	return t.Platform == other.Platform &&
		bytes.Equal(t.EnclaveID, other.EnclaveID) &&
		bytes.Equal(t.Measurement, other.Measurement) &&
		t.Timestamp.Equal(other.Timestamp) &&
		bytes.Equal(t.Data, other.Data) &&
		bytes.Equal(t.Signature, other.Signature)
}

type reportJSON struct {
	SGX *SGXReport `json:"sgx,omitempty"`
	SEV *SEVReport `json:"sev,omitempty"`
}

type attestationJSON struct {
	Platform    PlatformType `json:"platform"`
	EnclaveID   []byte       `json:"enclave_id"`
	Measurement []byte       `json:"measurement"`
	Signature   []byte       `json:"signature"`
	Timestamp   time.Time    `json:"timestamp"`
	Data        []byte       `json:"data,omitempty"`
	Report      *reportJSON  `json:"report,omitempty"`
}

func (t TEEAttestation) MarshalJSON() ([]byte, error) {
	out := attestationJSON{
		Platform:    t.Platform,
		EnclaveID:   t.EnclaveID,
		Measurement: t.Measurement,
		Signature:   t.Signature,
		Timestamp:   t.Timestamp,
		Data:        t.Data,
	}
	switch r := t.Report.(type) {
	case *SGXReport:
		out.Report = &reportJSON{SGX: r}
	case *SEVReport:
		out.Report = &reportJSON{SEV: r}
	}
	return json.Marshal(out)
}

func (t *TEEAttestation) UnmarshalJSON(b []byte) error {
	var in attestationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*t = TEEAttestation{
		Platform:    in.Platform,
		EnclaveID:   in.EnclaveID,
		Measurement: in.Measurement,
		Signature:   in.Signature,
		Timestamp:   in.Timestamp,
		Data:        in.Data,
	}
	if in.Report == nil {
		return nil
	}
	switch {
	case in.Report.SGX != nil && in.Report.SEV != nil:
		return fmt.Errorf("%w: report carries both variants", ErrAttestation)
	case in.Report.SGX != nil:
		t.Report = in.Report.SGX
	case in.Report.SEV != nil:
		t.Report = in.Report.SEV
	}
	return nil
}
