package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rhombus-tech/POC4/core"
)

type executeRequest struct {
	ID            string `json:"id,omitempty"`
	Function      string `json:"function"`
	Input         []byte `json:"input"`
	ExpectedHash  []byte `json:"expected_hash,omitempty"`
	DetailedProof bool   `json:"detailed_proof,omitempty"`
}

type attestationsResponse struct {
	Primary   core.TEEAttestation `json:"primary"`
	Secondary core.TEEAttestation `json:"secondary"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	payload := &core.ExecutionPayload{
		ID:            req.ID,
		Function:      req.Function,
		Input:         req.Input,
		ExpectedHash:  req.ExpectedHash,
		DetailedProof: req.DetailedProof,
	}

	res, err := s.executor.Execute(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAttestations(w http.ResponseWriter, r *http.Request) {
	primary, secondary, err := s.executor.GetAttestations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attestationsResponse{Primary: primary, Secondary: secondary})
}
