package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadflowhq/leadflow/internal/scrape"
	"github.com/leadflowhq/leadflow/internal/senders"
	"github.com/leadflowhq/leadflow/internal/tasks"
)

const apiVersion = "0.1.0"

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	ActiveTasks int    `json:"active_tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     apiVersion,
		Uptime:      time.Since(s.startTime).String(),
		ActiveTasks: s.service.ActiveTasks(),
	})
}

// scrapeRequest accepts country and job as either a single string or a
// list
type scrapeRequest struct {
	Country    stringList `json:"country"`
	Job        stringList `json:"job"`
	MaxResults int        `json:"max_results"`
	ProxyType  string     `json:"proxy_type"`
}

func (s *Server) handleStartScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Country) == 0 || len(req.Job) == 0 {
		writeError(w, http.StatusBadRequest, "'country' and 'job' fields are required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 30
	}
	if req.ProxyType == "" {
		req.ProxyType = "RESIDENTIAL"
	}

	var combos []scrape.Combination
	for _, country := range req.Country {
		for _, job := range req.Job {
			if country == "" || job == "" {
				continue
			}
			combos = append(combos, scrape.Combination{Job: job, Country: country})
		}
	}
	if len(combos) == 0 {
		writeError(w, http.StatusBadRequest, "no valid country/job combinations provided")
		return
	}

	taskID, err := s.service.StartScrape(combos, req.MaxResults, req.ProxyType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleStartCampaign(channel senders.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := s.service.StartCampaign(channel)
		if err != nil {
			var busy *tasks.ErrBusy
			if errors.As(err, &busy) {
				writeError(w, http.StatusConflict, busy.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := s.service.Task(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// stringList unmarshals from either a JSON string or an array of
// strings
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = stringList(many)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
