package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/hypersdk/crypto/ed25519"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/config"
	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/regions"
	"github.com/rhombus-tech/POC4/store"
	"github.com/rhombus-tech/POC4/tee"
	"github.com/rhombus-tech/POC4/verifier"
)

// node holds everything built from a Config and the resources to release.
type node struct {
	log         logging.Logger
	cfg         *config.Config
	kv          store.KV
	accumulator *accumulator.Accumulator
	executor    *tee.PairedExecutor
	client      *regions.Client

	// simulated backends register their keys as trust roots
	keys    map[core.PlatformType]ed25519.PublicKey
	closers []io.Closer
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log, err := newLogger("teectl", level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newNode(cfg *config.Config, log logging.Logger) *node {
	return &node{
		log:  log,
		cfg:  cfg,
		keys: make(map[core.PlatformType]ed25519.PublicKey),
	}
}

func (n *node) Close() error {
	closers := n.closers
	if n.kv != nil {
		closers = append(closers, n.kv)
	}
	return tee.CloseAll(closers...)
}

func (n *node) openAccumulator(ctx context.Context) error {
	kv, err := store.Open(n.cfg.Store)
	if err != nil {
		return err
	}
	n.kv = kv

	acc, err := accumulator.New(kv, n.log)
	if err != nil {
		return err
	}
	n.accumulator = acc

	if _, initialized := acc.State(); !initialized && n.cfg.Accumulator.InitOnStart {
		if err := acc.Init(ctx, n.cfg.Accumulator.Params); err != nil {
			return err
		}
		n.log.Info("accumulator initialized", zap.Uint64("maxSize", n.cfg.Accumulator.Params.MaxSize))
	}
	return nil
}

func (n *node) regionClient() (*regions.Client, error) {
	if n.client != nil {
		return n.client, nil
	}
	c, err := regions.NewClient(n.cfg.Client, n.log)
	if err != nil {
		return nil, err
	}
	n.client = c
	return c, nil
}

func (n *node) buildBackend(side config.BackendConfig) (core.Backend, error) {
	platform, err := side.PlatformType(n.cfg.Client)
	if err != nil {
		return nil, err
	}

	var backend core.Backend
	kind, target := side.Kind()
	switch kind {
	case config.KindSimulated:
		sim, err := tee.NewSimulatedBackend(platform)
		if err != nil {
			return nil, err
		}
		n.keys[platform] = sim.PublicKey()
		backend = sim
	case config.KindGRPC:
		g, err := tee.DialBackend(target, platform, n.cfg.Client.ConnectTimeout, n.log)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, g)
		backend = g
	case config.KindProcess:
		backend, err = tee.NewProcessBackend(platform, target, side.Args, nil)
		if err != nil {
			return nil, err
		}
	case config.KindRegion:
		client, err := n.regionClient()
		if err != nil {
			return nil, err
		}
		// the region client already retries
		return client.Backend(target)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", core.ErrConfiguration, side.Backend)
	}

	if side.Retry {
		backend = regions.NewRetryingBackend(backend, regions.NewRetrier(n.cfg.Client, n.log))
	}
	n.log.Info("backend ready",
		zap.Stringer("platform", platform),
		zap.String("kind", kind),
		zap.String("target", target),
	)
	return backend, nil
}

func (n *node) buildVerifier() (*verifier.Verifier, error) {
	keys, err := n.cfg.Verifier.Keys()
	if err != nil {
		return nil, err
	}
	for platform, key := range n.keys {
		if _, ok := keys[platform]; !ok {
			keys[platform] = key
		}
	}

	opts := []verifier.Option{verifier.WithMaxAge(n.cfg.Verifier.MaxAge)}
	if len(keys) > 0 {
		ev := &verifier.Ed25519Verifier{Keys: keys}
		if n.cfg.Verifier.StructuralFallback {
			ev.Fallback = verifier.StructuralSignatureVerifier{}
		}
		opts = append(opts, verifier.WithSignatureVerifier(ev))
	} else {
		n.log.Warn("no signature trust roots configured, accepting signatures structurally")
	}
	return verifier.New(n.log, opts...), nil
}

// openExecutor builds both backends and the paired executor. Membership is
// enforced when an executor id is configured and the accumulator is open.
func (n *node) openExecutor() error {
	primary, err := n.buildBackend(n.cfg.Executor.Primary)
	if err != nil {
		return fmt.Errorf("primary backend: %w", err)
	}
	secondary, err := n.buildBackend(n.cfg.Executor.Secondary)
	if err != nil {
		return fmt.Errorf("secondary backend: %w", err)
	}
	v, err := n.buildVerifier()
	if err != nil {
		return err
	}

	opts := []tee.Option{tee.WithConfig(n.cfg.Executor.Config)}
	if id := n.cfg.Executor.ExecutorID; id != "" && n.accumulator != nil {
		executor, err := core.ParseExecutorID(id)
		if err != nil {
			return err
		}
		opts = append(opts, tee.WithMembership(n.accumulator, executor))
	}

	e, err := tee.NewPairedExecutor(primary, secondary, v, n.log, opts...)
	if err != nil {
		return err
	}
	n.executor = e
	return nil
}
