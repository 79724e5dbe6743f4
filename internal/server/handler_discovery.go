package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "kthreads trace API",
		Version:     "v1",
		Description: "Recorded kernel scheduling sessions: events, statistics and thread snapshots",
		Endpoints: []endpointInfo{
			{"/api/v1/sessions", []string{"GET"}, "List sessions, newest first. Accepts ?state=&limit=&offset="},
			{"/api/v1/sessions/{id}", []string{"GET", "DELETE"}, "Single session with statistics and failures"},
			{"/api/v1/sessions/{id}/events", []string{"GET"}, "Scheduler events in order. Accepts ?kind=&thread=&limit=&offset="},
			{"/api/v1/sessions/{id}/threads", []string{"GET"}, "Thread table snapshot taken at power off"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
