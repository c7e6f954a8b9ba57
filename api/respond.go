package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/tee"
)

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"error": err.Error(),
	})
}

// statusFor maps error families to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, tee.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrResultMismatch), errors.Is(err, core.ErrStateMismatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrBackendUnavailable), errors.Is(err, core.ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, accumulator.ErrFull):
		return http.StatusInsufficientStorage
	case errors.Is(err, core.ErrAttestation), errors.Is(err, core.ErrExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInitialization):
		return http.StatusPreconditionFailed
	case errors.Is(err, core.ErrRegion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
