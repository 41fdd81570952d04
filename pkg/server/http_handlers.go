package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusResponse is served on /status
type StatusResponse struct {
	Sessions    int `json:"sessions"`
	Accounts    int `json:"accounts"`
	OnlineUsers int `json:"online_users"`
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", s.StatusHandler)
	return mux
}

// StatusHandler reports live counts as JSON
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Sessions:    s.sessions.Count(),
		Accounts:    s.accounts.Count(),
		OnlineUsers: s.accounts.OnlineCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		errorLog.Printf("Failed to encode status: %v", err)
	}
}
