package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"veo3.app/license/internal/logger"
	"veo3.app/license/license"
	"veo3.app/license/models"
)

type VerifyRequest struct {
	Key string `json:"key"`
}

type ActivateRequest struct {
	Key   string `json:"key"`
	Email string `json:"email"`
}

type ValidResponse struct {
	Valid          bool    `json:"valid"`
	Type           string  `json:"type"`
	ExpiresAt      *string `json:"expiresAt"`
	CheckFrequency string  `json:"checkFrequency"`
}

type InvalidResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

type VerifyErrorResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

type ActivateResponse struct {
	Success        bool   `json:"success"`
	Type           string `json:"type"`
	ExpiresAt      string `json:"expiresAt"`
	CheckFrequency string `json:"checkFrequency"`
}

type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const internalErrorMessage = "Internal server error"

// VerifyLicense reports whether a key is usable. Nothing about the request
// is logged; only storage failures are, without the key.
func (s *Server) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	decodeOrEmpty(r, &req)

	result, err := s.Registry.Verify(r.Context(), req.Key)
	switch {
	case errors.Is(err, license.ErrMissingKey):
		respond(w, r, http.StatusBadRequest, VerifyErrorResponse{Valid: false, Error: err.Error()})
		return
	case errors.Is(err, license.ErrNotFound):
		respond(w, r, http.StatusNotFound, VerifyErrorResponse{Valid: false, Error: err.Error()})
		return
	case err != nil:
		logger.Error("License verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		respond(w, r, http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
		return
	}

	if !result.Valid {
		respond(w, r, http.StatusOK, InvalidResponse{Valid: false, Reason: result.Reason})
		return
	}

	var expiresAt *string
	if result.ExpiresAt != nil {
		formatted := models.FormatTime(*result.ExpiresAt)
		expiresAt = &formatted
	}

	respond(w, r, http.StatusOK, ValidResponse{
		Valid:          true,
		Type:           result.Type,
		ExpiresAt:      expiresAt,
		CheckFrequency: result.CheckFrequency,
	})
}

func (s *Server) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	decodeOrEmpty(r, &req)

	result, err := s.Registry.Activate(r.Context(), req.Key, req.Email)
	switch {
	case errors.Is(err, license.ErrMissingFields), errors.Is(err, license.ErrAlreadyActivated):
		respond(w, r, http.StatusBadRequest, FailureResponse{Success: false, Error: err.Error()})
		return
	case errors.Is(err, license.ErrInvalidKey):
		respond(w, r, http.StatusNotFound, FailureResponse{Success: false, Error: err.Error()})
		return
	case err != nil:
		logger.Error("License activation failed", map[string]interface{}{
			"error": err.Error(),
		})
		respond(w, r, http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
		return
	}

	respond(w, r, http.StatusOK, ActivateResponse{
		Success:        true,
		Type:           result.Type,
		ExpiresAt:      models.FormatTime(result.ExpiresAt),
		CheckFrequency: result.CheckFrequency,
	})
}

// decodeOrEmpty leaves v zeroed when the body is missing, not valid JSON or
// has a field of the wrong type, so any undecodable input is answered like
// an empty request.
func decodeOrEmpty[T any](r *http.Request, v *T) {
	if r.Body == nil {
		return
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		var zero T
		*v = zero
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	render.Status(r, status)
	render.JSON(w, r, body)
}
