package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Commands      int    `json:"commands"`
	PluginsLoaded int    `json:"plugins_loaded"`
}

// CommandsResponse is the GET /commands body.
type CommandsResponse struct {
	Commands []string `json:"commands"`
}

// PluginsResponse is the GET /plugins body.
type PluginsResponse struct {
	Loaded    []string            `json:"loaded"`
	Installed map[string][]string `json:"installed"`
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Commands:      len(s.commands.Names()),
		PluginsLoaded: len(s.registry.LoadedNames()),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCommands handles GET /commands.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, CommandsResponse{Commands: s.commands.Names()})
}

// handlePlugins handles GET /plugins.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, PluginsResponse{
		Loaded:    s.registry.LoadedNames(),
		Installed: s.registry.InstalledSnapshot(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
