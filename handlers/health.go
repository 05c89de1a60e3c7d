package handlers

import "net/http"

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Privacy string `json:"privacy"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	h := s.Registry.Health()
	respond(w, r, http.StatusOK, HealthResponse{
		Status:  h.Status,
		Service: h.Service,
		Privacy: h.Privacy,
	})
}
