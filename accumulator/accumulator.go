package accumulator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/store"
)

const lockShards = 64

var _ core.MembershipVerifier = (*Accumulator)(nil)

// Accumulator is an append-only SHA-256 hash chain over registered
// attestations. Every Register serializes on writeLock. Reads and writes for
// one executor are exclusive through that executor's shard lock, so Verify
// for other executors proceeds while a Register is in flight.
type Accumulator struct {
	log   logging.Logger
	kv    store.KV
	clock *mockable.Clock

	writeLock sync.Mutex

	stateLock   sync.RWMutex
	initialized bool
	state       State

	shards [lockShards]sync.RWMutex
}

type Option func(*Accumulator)

func WithClock(clock *mockable.Clock) Option {
	return func(a *Accumulator) {
		a.clock = clock
	}
}

// New loads any previously initialized state from kv.
func New(kv store.KV, log logging.Logger, opts ...Option) (*Accumulator, error) {
	a := &Accumulator{
		log:   log,
		kv:    kv,
		clock: &mockable.Clock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Accumulator) load() error {
	paramsBytes, err := a.kv.Get(paramsKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading parameters: %w", err)
	}

	var state State
	if err := decode(paramsBytes, &state.Params); err != nil {
		return fmt.Errorf("decoding parameters: %w", err)
	}
	sizeBytes, err := a.kv.Get(sizeKey)
	if err != nil {
		return fmt.Errorf("loading size: %w", err)
	}
	state.Size = decodeUint64(sizeBytes)
	valueBytes, err := a.kv.Get(valueKey)
	if err != nil {
		return fmt.Errorf("loading value: %w", err)
	}
	if len(valueBytes) != HashLen {
		return fmt.Errorf("accumulator value has length %d", len(valueBytes))
	}
	copy(state.Value[:], valueBytes)

	a.state = state
	a.initialized = true
	sizeGauge.Set(float64(state.Size))
	a.log.Info("loaded accumulator",
		zap.Uint64("size", state.Size),
		zap.Stringer("value", state.Value),
	)
	return nil
}

// Init creates the accumulator. It can succeed only once per store.
func (a *Accumulator) Init(_ context.Context, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	a.writeLock.Lock()
	defer a.writeLock.Unlock()

	a.stateLock.RLock()
	initialized := a.initialized
	a.stateLock.RUnlock()
	if initialized {
		return ErrAlreadyInitialized
	}

	paramsBytes, err := encode(&params)
	if err != nil {
		return err
	}
	var zero Hash
	err = a.commit(
		put{paramsKey, paramsBytes},
		put{sizeKey, encodeUint64(0)},
		put{valueKey, zero[:]},
	)
	if err != nil {
		return fmt.Errorf("writing accumulator state: %w", err)
	}

	a.stateLock.Lock()
	a.state = State{Params: params}
	a.initialized = true
	a.stateLock.Unlock()

	sizeGauge.Set(0)
	a.log.Info("initialized accumulator",
		zap.Uint64("maxSize", params.MaxSize),
		zap.Duration("maxWitnessAge", params.MaxWitnessAge),
		zap.Uint64("minAttestations", params.MinAttestations),
	)
	return nil
}

// Register appends attestation to the chain and refreshes the executor's
// witness, record and latest attestation for that platform. All of it is
// committed in one batch; on failure nothing changes.
func (a *Accumulator) Register(_ context.Context, executor core.ExecutorID, attestation *core.TEEAttestation) error {
	if attestation == nil || !attestation.Platform.Valid() {
		registrations.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("%w: attestation requires a known platform", core.ErrAttestation)
	}
	if len(attestation.Measurement) == 0 {
		registrations.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("%w: %w", core.ErrAttestation, core.ErrInvalidMeasurement)
	}
	attestationBytes, err := attestation.Bytes()
	if err != nil {
		registrations.WithLabelValues(outcomeRejected).Inc()
		return err
	}

	a.writeLock.Lock()
	defer a.writeLock.Unlock()

	state, ok := a.State()
	if !ok {
		registrations.WithLabelValues(outcomeRejected).Inc()
		return ErrNotInitialized
	}
	if state.Size >= state.Params.MaxSize {
		registrations.WithLabelValues(outcomeFull).Inc()
		return ErrFull
	}

	shard := a.shard(executor)
	shard.Lock()
	defer shard.Unlock()

	timestamp := attestation.Timestamp.Truncate(time.Second).UTC()
	element := Element{
		Executor:    executor,
		Measurement: bytes.Clone(attestation.Measurement),
		Platform:    attestation.Platform,
		Timestamp:   timestamp,
	}
	elementBytes := element.Bytes()

	newValue := chainHash(state.Value, elementBytes)
	witness := Witness{
		Value:           witnessHash(newValue, elementBytes),
		LastAccumulator: newValue,
		Element:         element,
		LastUpdate:      timestamp,
	}

	record, err := a.getRecord(executor)
	switch {
	case errors.Is(err, ErrNotRegistered):
		record = &ExecutorRecord{Executor: executor}
	case err != nil:
		return failRegistration(err)
	}
	record.setSlot(attestation.Platform, attestation.Measurement)
	if timestamp.After(record.LastAttestation) {
		record.LastAttestation = timestamp
	}
	record.AttestationCount++

	witnessBytes, err := encode(&witness)
	if err != nil {
		return failRegistration(err)
	}
	recordBytes, err := encode(record)
	if err != nil {
		return failRegistration(err)
	}
	newSize := state.Size + 1

	err = a.commit(
		put{valueKey, newValue[:]},
		put{sizeKey, encodeUint64(newSize)},
		put{witnessKey(executor), witnessBytes},
		put{recordKey(executor), recordBytes},
		put{latestKey(executor, attestation.Platform), attestationBytes},
	)
	if err != nil {
		return failRegistration(fmt.Errorf("committing registration: %w", err))
	}

	a.stateLock.Lock()
	a.state.Value = newValue
	a.state.Size = newSize
	a.stateLock.Unlock()

	sizeGauge.Set(float64(newSize))
	registrations.WithLabelValues(outcomeOK).Inc()
	a.log.Debug("registered attestation",
		zap.Stringer("executor", executor),
		zap.Stringer("platform", attestation.Platform),
		zap.Uint64("size", newSize),
	)
	return nil
}

// Verify checks a and b against the executor's record and latest witness.
// It returns false together with the reason on any failure.
func (a *Accumulator) Verify(_ context.Context, executor core.ExecutorID, attA, attB *core.TEEAttestation) (bool, error) {
	state, ok := a.State()
	if !ok {
		return false, ErrNotInitialized
	}

	shard := a.shard(executor)
	shard.RLock()
	defer shard.RUnlock()

	record, err := a.getRecord(executor)
	if err != nil {
		return false, err
	}

	now := a.clock.Time()
	if age := now.Sub(record.LastAttestation); age > state.Params.MaxWitnessAge {
		return false, fmt.Errorf("%w: last attestation %s old", ErrStale, age)
	}

	for _, att := range []*core.TEEAttestation{attA, attB} {
		if att == nil {
			return false, fmt.Errorf("%w: missing attestation", ErrMeasurementMismatch)
		}
		slot := record.Slot(att.Platform)
		if len(slot) == 0 || !bytes.Equal(slot, att.Measurement) {
			return false, fmt.Errorf("%w: %s", ErrMeasurementMismatch, att.Platform)
		}
	}

	if record.AttestationCount < state.Params.MinAttestations {
		return false, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientAttestations, record.AttestationCount, state.Params.MinAttestations)
	}

	witness, err := a.getWitness(executor)
	if err != nil {
		return false, err
	}
	if witness.Element.Executor != executor {
		return false, fmt.Errorf("%w: witness issued to %s", ErrInvalidWitness, witness.Element.Executor)
	}
	expected := witnessHash(witness.LastAccumulator, witness.Element.Bytes())
	if expected != witness.Value {
		return false, ErrInvalidWitness
	}
	return true, nil
}

// State returns a snapshot of the chain head and whether Init has run.
func (a *Accumulator) State() (State, bool) {
	a.stateLock.RLock()
	defer a.stateLock.RUnlock()
	return a.state, a.initialized
}

func (a *Accumulator) Record(executor core.ExecutorID) (*ExecutorRecord, error) {
	shard := a.shard(executor)
	shard.RLock()
	defer shard.RUnlock()
	return a.getRecord(executor)
}

func (a *Accumulator) Witness(executor core.ExecutorID) (*Witness, error) {
	shard := a.shard(executor)
	shard.RLock()
	defer shard.RUnlock()
	return a.getWitness(executor)
}

// LatestAttestations returns the last attestation registered for executor
// on each platform, SGX first. Platforms never registered are omitted.
func (a *Accumulator) LatestAttestations(executor core.ExecutorID) ([]*core.TEEAttestation, error) {
	shard := a.shard(executor)
	shard.RLock()
	defer shard.RUnlock()

	var out []*core.TEEAttestation
	for _, platform := range []core.PlatformType{core.PlatformTypeSGX, core.PlatformTypeSEV} {
		b, err := a.kv.Get(latestKey(executor, platform))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		att, err := core.ParseTEEAttestation(b)
		if err != nil {
			return nil, fmt.Errorf("decoding %s attestation for %s: %w", platform, executor, err)
		}
		out = append(out, att)
	}
	return out, nil
}

type put struct {
	key, value []byte
}

// commit writes puts in one batch. Nothing is written unless every put is
// accepted.
func (a *Accumulator) commit(puts ...put) error {
	batch := a.kv.NewBatch()
	for _, p := range puts {
		if err := batch.Put(p.key, p.value); err != nil {
			batch.Discard()
			return err
		}
	}
	return batch.Write()
}

func failRegistration(err error) error {
	registrations.WithLabelValues(outcomeError).Inc()
	return err
}

func (a *Accumulator) getRecord(executor core.ExecutorID) (*ExecutorRecord, error) {
	b, err := a.kv.Get(recordKey(executor))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, err
	}
	record := &ExecutorRecord{}
	if err := decode(b, record); err != nil {
		return nil, fmt.Errorf("decoding record for %s: %w", executor, err)
	}
	return record, nil
}

func (a *Accumulator) getWitness(executor core.ExecutorID) (*Witness, error) {
	b, err := a.kv.Get(witnessKey(executor))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoWitness
	}
	if err != nil {
		return nil, err
	}
	witness := &Witness{}
	if err := decode(b, witness); err != nil {
		return nil, fmt.Errorf("decoding witness for %s: %w", executor, err)
	}
	return witness, nil
}

// shard picks the lock for executor. Address bytes after the type prefix
// are already uniformly distributed.
func (a *Accumulator) shard(executor core.ExecutorID) *sync.RWMutex {
	return &a.shards[binary.BigEndian.Uint32(executor[1:5])%lockShards]
}
