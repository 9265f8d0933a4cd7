package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/questlog/internal/engine"
	"github.com/lazypower/questlog/internal/graph"
	"github.com/lazypower/questlog/internal/store"
)

type createEntryRequest struct {
	Text     string             `json:"text"`
	Actions  []string           `json:"actions"`
	Weights  map[string]float64 `json:"weights"`
	Duration string             `json:"duration"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	sub, err := s.journal.Submit(r.Context(), userID(r), engine.EntryInput{
		Text:          req.Text,
		Actions:       req.Actions,
		ActionWeights: req.Weights,
		Duration:      req.Duration,
	})
	if errors.Is(err, engine.ErrEmptyEntry) {
		writeError(w, http.StatusBadRequest, "entry needs text or actions")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"entry":  sub.Entry,
		"result": sub.Result,
		"stage":  sub.Stage,
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}

	entries, err := s.db.ListEntries(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.db.GetEntry(r.Context(), userID(r), chi.URLParam(r, "entryID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type graphResponse struct {
	Version int64        `json:"version"`
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.db.LoadGraph(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, graphResponse{
		Version: g.Version,
		Nodes:   g.SortedNodes(),
		Edges:   g.SortedEdges(),
	})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	err := s.journal.DeleteNode(r.Context(), userID(r), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

type statRow struct {
	Label      string  `json:"label"`
	Experience float64 `json:"experience"`
	Level      int     `json:"level"`
}

// rankStats orders stats by experience, highest first, ties by label.
func rankStats(stats map[string]engine.NodeStats) []statRow {
	rows := make([]statRow, 0, len(stats))
	for label, st := range stats {
		rows = append(rows, statRow{Label: label, Experience: st.Experience, Level: st.Level})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Experience != rows[j].Experience {
			return rows[i].Experience > rows[j].Experience
		}
		return rows[i].Label < rows[j].Label
	})
	return rows
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	stats, err := s.db.LoadStats(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.db.CountEntries(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0.0
	for _, st := range stats {
		total += st.Experience
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":             user,
		"nodes":            rankStats(stats),
		"total_experience": total,
		"entries":          counts,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.journal.Clear(r.Context(), userID(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
