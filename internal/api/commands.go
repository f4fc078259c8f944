package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

const maxCommandBody = 1 << 20

type configRequest struct {
	Target *int `json:"target"`
}

type topicsRequest struct {
	Topics []string `json:"topics"`
}

// start begins a session. Starting while one is running is a no-op and still
// succeeds.
func (s *Server) start(w http.ResponseWriter, _ *http.Request) {
	started := s.engine.Start()
	s.logger.Info("start requested", zap.Bool("started", started))
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	stopped := s.engine.Stop()
	s.logger.Info("stop requested", zap.Bool("stopped", stopped))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Target == nil {
		writeError(w, http.StatusBadRequest, "target required")
		return
	}
	if *req.Target < 0 {
		writeError(w, http.StatusBadRequest, "target must be >= 0")
		return
	}
	s.engine.State().SetTarget(*req.Target)
	s.logger.Info("target updated", zap.Int("target", *req.Target))
	writeJSON(w, http.StatusOK, map[string]int{"target": *req.Target})
}

// updateTopics replaces the custom topic list. Blank entries are dropped; an
// empty result reverts the orchestrator to its built-in strategies.
func (s *Server) updateTopics(w http.ResponseWriter, r *http.Request) {
	var req topicsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topics := make([]string, 0, len(req.Topics))
	for _, t := range req.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	s.engine.State().SetTopics(topics)
	s.publish(hunter.NewLogEvent(s.clock.Now(), hunter.LevelSuccess,
		fmt.Sprintf("Loaded %d custom topics.", len(topics))))
	writeJSON(w, http.StatusOK, map[string]int{"topics": len(topics)})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	state := s.engine.State()
	writeJSON(w, http.StatusOK, state.Status(state.Running()))
}

func (s *Server) export(w http.ResponseWriter, _ *http.Request) {
	sources := s.engine.State().Sources()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="data.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := hunter.WriteCSV(w, sources); err != nil {
		s.logger.Warn("export write failed", zap.Error(err))
	}
}

func (s *Server) publish(evt hunter.Event) {
	if s.publisher != nil {
		s.publisher.Publish(evt)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
