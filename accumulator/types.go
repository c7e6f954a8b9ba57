package accumulator

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ava-labs/hypersdk/codec"

	"github.com/rhombus-tech/POC4/core"
)

const (
	HashLen = sha256.Size

	DefaultMaxWitnessAge = 7 * 24 * time.Hour

	witnessDomain = "witness"
	maxRecordSize = 4096
)

type Hash [HashLen]byte

type Params struct {
	MaxSize         uint64        `json:"max_size" yaml:"max_size"`
	MaxWitnessAge   time.Duration `json:"max_witness_age" yaml:"max_witness_age"`
	MinAttestations uint64        `json:"min_attestations" yaml:"min_attestations"`
}

func DefaultParams() Params {
	return Params{
		MaxSize:         1000,
		MaxWitnessAge:   DefaultMaxWitnessAge,
		MinAttestations: 2,
	}
}

func (p Params) Validate() error {
	if p.MaxSize == 0 {
		return ErrInvalidParams
	}
	if p.MaxWitnessAge <= 0 {
		return ErrInvalidParams
	}
	return nil
}

// State is the persisted head of the hash chain.
type State struct {
	Value  Hash   `json:"value"`
	Size   uint64 `json:"size"`
	Params Params `json:"params"`
}

// Element is the unit appended to the chain.
type Element struct {
	Executor    core.ExecutorID   `json:"executor"`
	Measurement []byte            `json:"measurement"`
	Platform    core.PlatformType `json:"platform"`
	Timestamp   time.Time         `json:"timestamp"`
}

func (e *Element) Marshal(p *codec.Packer) {
	e.Executor.Marshal(p)
	p.PackBytes(e.Measurement)
	p.PackByte(byte(e.Platform))
	p.PackUint64(uint64(e.Timestamp.Unix()))
}

func (e *Element) Unmarshal(p *codec.Packer) {
	e.Executor.Unmarshal(p)
	p.UnpackBytes(core.MaxMeasurementSize, false, &e.Measurement)
	e.Platform = core.PlatformType(p.UnpackByte())
	e.Timestamp = time.Unix(int64(p.UnpackUint64(false)), 0).UTC()
}

func (e *Element) Bytes() []byte {
	p := codec.NewWriter(0, maxRecordSize)
	e.Marshal(p)
	return p.Bytes()
}

// Witness is the latest proof issued to an executor.
type Witness struct {
	Value           Hash      `json:"value"`
	LastAccumulator Hash      `json:"last_accumulator"`
	Element         Element   `json:"element"`
	LastUpdate      time.Time `json:"last_update"`
}

func (w *Witness) Marshal(p *codec.Packer) {
	p.PackFixedBytes(w.Value[:])
	p.PackFixedBytes(w.LastAccumulator[:])
	w.Element.Marshal(p)
	p.PackUint64(uint64(w.LastUpdate.Unix()))
}

func (w *Witness) Unmarshal(p *codec.Packer) {
	value := w.Value[:]
	p.UnpackFixedBytes(HashLen, &value)
	last := w.LastAccumulator[:]
	p.UnpackFixedBytes(HashLen, &last)
	w.Element.Unmarshal(p)
	w.LastUpdate = time.Unix(int64(p.UnpackUint64(false)), 0).UTC()
}

// ExecutorRecord tracks the last measurement seen per platform.
// An empty slot means no attestation of that platform was registered.
type ExecutorRecord struct {
	Executor         core.ExecutorID `json:"executor"`
	LastAttestation  time.Time       `json:"last_attestation"`
	AttestationCount uint64          `json:"attestation_count"`
	SGXMeasurement   []byte          `json:"sgx_measurement,omitempty"`
	SEVMeasurement   []byte          `json:"sev_measurement,omitempty"`
}

func (r *ExecutorRecord) Slot(platform core.PlatformType) []byte {
	switch platform {
	case core.PlatformTypeSGX:
		return r.SGXMeasurement
	case core.PlatformTypeSEV:
		return r.SEVMeasurement
	default:
		return nil
	}
}

func (r *ExecutorRecord) setSlot(platform core.PlatformType, measurement []byte) {
	m := bytes.Clone(measurement)
	switch platform {
	case core.PlatformTypeSGX:
		r.SGXMeasurement = m
	case core.PlatformTypeSEV:
		r.SEVMeasurement = m
	}
}

func (r *ExecutorRecord) Marshal(p *codec.Packer) {
	r.Executor.Marshal(p)
	p.PackUint64(uint64(r.LastAttestation.Unix()))
	p.PackUint64(r.AttestationCount)
	p.PackBytes(r.SGXMeasurement)
	p.PackBytes(r.SEVMeasurement)
}

func (r *ExecutorRecord) Unmarshal(p *codec.Packer) {
	r.Executor.Unmarshal(p)
	r.LastAttestation = time.Unix(int64(p.UnpackUint64(false)), 0).UTC()
	r.AttestationCount = p.UnpackUint64(false)
	p.UnpackBytes(core.MaxMeasurementSize, false, &r.SGXMeasurement)
	p.UnpackBytes(core.MaxMeasurementSize, false, &r.SEVMeasurement)
	if len(r.SGXMeasurement) == 0 {
		r.SGXMeasurement = nil
	}
	if len(r.SEVMeasurement) == 0 {
		r.SEVMeasurement = nil
	}
}

func (p *Params) Marshal(pk *codec.Packer) {
	pk.PackUint64(p.MaxSize)
	pk.PackInt64(int64(p.MaxWitnessAge))
	pk.PackUint64(p.MinAttestations)
}

func (p *Params) Unmarshal(pk *codec.Packer) {
	p.MaxSize = pk.UnpackUint64(false)
	p.MaxWitnessAge = time.Duration(pk.UnpackInt64(false))
	p.MinAttestations = pk.UnpackUint64(false)
}

type marshaler interface {
	Marshal(p *codec.Packer)
}

type unmarshaler interface {
	Unmarshal(p *codec.Packer)
}

func encode(m marshaler) ([]byte, error) {
	p := codec.NewWriter(0, maxRecordSize)
	m.Marshal(p)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

func decode(b []byte, u unmarshaler) error {
	p := codec.NewReader(b, len(b))
	u.Unmarshal(p)
	return p.Err()
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// chainHash computes the append rule H(old || ser(element)).
func chainHash(old Hash, element []byte) Hash {
	h := sha256.New()
	h.Write(old[:])
	h.Write(element)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// witnessHash computes H(accumulator || "witness" || ser(element)).
func witnessHash(acc Hash, element []byte) Hash {
	h := sha256.New()
	h.Write(acc[:])
	h.Write([]byte(witnessDomain))
	h.Write(element)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(decoded) != HashLen {
		return fmt.Errorf("hash length %d, want %d", len(decoded), HashLen)
	}
	copy(h[:], decoded)
	return nil
}
