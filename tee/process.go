package tee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rhombus-tech/POC4/core"
)

// Subcommands understood by a backend controller process.
const (
	ProcessExecute      = "execute"
	ProcessAttestations = "attestations"
	ProcessHealth       = "health"
)

var _ core.Backend = (*ProcessBackend)(nil)

// ProcessBackend runs an external controller once per call. The payload is
// written as JSON to stdin and the result is read as JSON from stdout.
type ProcessBackend struct {
	platform core.PlatformType
	path     string
	args     []string
	env      []string
}

func NewProcessBackend(platform core.PlatformType, path string, args []string, env []string) (*ProcessBackend, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, core.ErrUnknownPlatform)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: controller path is empty", core.ErrConfiguration)
	}
	return &ProcessBackend{
		platform: platform,
		path:     path,
		args:     args,
		env:      env,
	}, nil
}

func (p *ProcessBackend) Platform() core.PlatformType {
	return p.platform
}

func (p *ProcessBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	in, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out, err := p.run(ctx, ProcessExecute, in)
	if err != nil {
		return nil, err
	}
	var result core.ExecutionResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse controller result: %w", ErrProcessFailed, err)
	}
	return &result, nil
}

func (p *ProcessBackend) Attestations(ctx context.Context) ([]core.TEEAttestation, error) {
	out, err := p.run(ctx, ProcessAttestations, nil)
	if err != nil {
		return nil, err
	}
	var atts []core.TEEAttestation
	if err := json.Unmarshal(out, &atts); err != nil {
		return nil, fmt.Errorf("%w: failed to parse attestations: %w", ErrProcessFailed, err)
	}
	return atts, nil
}

// HealthCheck reports unhealthy, not an error, when the controller exits non-zero.
func (p *ProcessBackend) HealthCheck(ctx context.Context) (bool, error) {
	_, err := p.run(ctx, ProcessHealth, nil)
	if errors.Is(err, ErrProcessFailed) {
		return false, nil
	}
	return err == nil, err
}

func (p *ProcessBackend) run(ctx context.Context, command string, stdin []byte) ([]byte, error) {
	args := append(append([]string{}, p.args...), command)
	cmd := exec.CommandContext(ctx, p.path, args...)
	if len(p.env) > 0 {
		cmd.Env = append(cmd.Environ(), p.env...)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: controller %s: %w", core.ErrExecution, command, ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrProcessFailed, command, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ServeProcess is the controller side of ProcessBackend: it answers one
// command for b, reading from in and writing to out.
func ServeProcess(ctx context.Context, b core.Backend, command string, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	switch command {
	case ProcessExecute:
		var payload core.ExecutionPayload
		if err := json.NewDecoder(in).Decode(&payload); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		res, err := b.Execute(ctx, &payload)
		if err != nil {
			return err
		}
		return enc.Encode(res)
	case ProcessAttestations:
		atts, err := b.Attestations(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(atts)
	case ProcessHealth:
		healthy, err := b.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("%w: %s unhealthy", core.ErrBackendUnavailable, b.Platform())
		}
		return nil
	default:
		return fmt.Errorf("unknown controller command %q", command)
	}
}
