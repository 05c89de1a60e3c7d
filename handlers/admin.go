package handlers

import (
	"errors"
	"net/http"

	"veo3.app/license/internal/logger"
	"veo3.app/license/license"
)

type CreateLicenseRequest struct {
	AdminKey string `json:"adminKey"`
	Type     string `json:"type"`
	Email    string `json:"email"`
}

type CreateLicenseResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	Type    string `json:"type"`
}

func (s *Server) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var req CreateLicenseRequest
	decodeOrEmpty(r, &req)

	result, err := s.Registry.Create(r.Context(), req.AdminKey, req.Type, req.Email)
	switch {
	case errors.Is(err, license.ErrUnauthorized):
		respond(w, r, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		logger.Error("License creation failed", map[string]interface{}{
			"error": err.Error(),
		})
		respond(w, r, http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
		return
	}

	respond(w, r, http.StatusOK, CreateLicenseResponse{
		Success: true,
		Key:     result.Key,
		Type:    result.Type,
	})
}
