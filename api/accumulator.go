package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/core"
)

type stateResponse struct {
	Initialized bool              `json:"initialized"`
	State       accumulator.State `json:"state"`
}

type registerRequest struct {
	Executor    core.ExecutorID     `json:"executor"`
	Attestation core.TEEAttestation `json:"attestation"`
}

type verifyRequest struct {
	Executor core.ExecutorID     `json:"executor"`
	First    core.TEEAttestation `json:"first"`
	Second   core.TEEAttestation `json:"second"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type verifyExecutionRequest struct {
	Executor core.ExecutorID      `json:"executor"`
	SGX      core.ExecutionResult `json:"sgx"`
	SEV      core.ExecutionResult `json:"sev"`
}

type executorResponse struct {
	Record       *accumulator.ExecutorRecord `json:"record"`
	Witness      *accumulator.Witness        `json:"witness,omitempty"`
	Attestations []*core.TEEAttestation      `json:"attestations,omitempty"`
}

func (s *Server) writeState(w http.ResponseWriter, status int) {
	state, initialized := s.accumulator.State()
	writeJSON(w, status, stateResponse{Initialized: initialized, State: state})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeState(w, http.StatusOK)
}

// handleInit accepts partial params; omitted fields keep their defaults.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	params := accumulator.DefaultParams()
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := s.accumulator.Init(r.Context(), params); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("accumulator initialized",
		zap.Uint64("maxSize", params.MaxSize),
		zap.Duration("maxWitnessAge", params.MaxWitnessAge),
		zap.Uint64("minAttestations", params.MinAttestations),
	)
	s.writeState(w, http.StatusCreated)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.accumulator.Register(r.Context(), req.Executor, &req.Attestation); err != nil {
		writeError(w, err)
		return
	}
	s.writeState(w, http.StatusCreated)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.accumulator.Verify(r.Context(), req.Executor, &req.First, &req.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Verified: ok})
}

func (s *Server) handleVerifyExecution(w http.ResponseWriter, r *http.Request) {
	var req verifyExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.accumulator.VerifyExecution(r.Context(), req.Executor, &req.SGX, &req.SEV)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExecutor(w http.ResponseWriter, r *http.Request) {
	executor, err := core.ParseExecutorID(chi.URLParam(r, "executor"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	record, err := s.accumulator.Record(executor)
	if errors.Is(err, accumulator.ErrNotRegistered) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	witness, err := s.accumulator.Witness(executor)
	if err != nil && !errors.Is(err, accumulator.ErrNoWitness) {
		writeError(w, err)
		return
	}
	latest, err := s.accumulator.LatestAttestations(executor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executorResponse{Record: record, Witness: witness, Attestations: latest})
}
