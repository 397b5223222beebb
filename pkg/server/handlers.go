package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/harrisonrobin/hubsync/pkg/profile"
	"github.com/harrisonrobin/hubsync/pkg/roster"
)

func queryFor(id roster.Identity) engine.Query {
	return engine.Query{Role: id.Role, CallerID: id.ID}
}

// ownsCourier reports whether the caller may act on the given courier.
func ownsCourier(id roster.Identity, c model.Courier) bool {
	return id.Role != model.RoleCourier || (c.ID != "" && c.ID == model.NormalizeCourierID(id.ID))
}

type packetsResponse struct {
	Packets []model.WorkPacket `json:"packets"`
	Stats   engine.Stats       `json:"stats"`
}

func (s *Server) handlePackets(w http.ResponseWriter, r *http.Request) {
	q := queryFor(identityFrom(r.Context()))
	v := r.URL.Query()
	cat, ok := engine.ParseCategory(v.Get("category"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	q.Category = cat
	q.Station = model.Station(strings.TrimSpace(v.Get("station")))
	q.Search = v.Get("q")

	tasks := engine.Filter(s.opts.Engine.Snapshot(), q)
	packets := engine.Group(tasks)
	if packets == nil {
		packets = []model.WorkPacket{}
	}
	writeJSON(w, http.StatusOK, packetsResponse{Packets: packets, Stats: engine.Summarize(tasks)})
}

// handlePacketDetail serves one packet with its member list narrowed by the
// status query parameter.
func (s *Server) handlePacketDetail(w http.ResponseWriter, r *http.Request) {
	q := queryFor(identityFrom(r.Context()))
	v := r.URL.Query()
	status, ok := engine.ParseStatusFilter(v.Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	q.Status = status
	key := model.PacketKey{CourierName: v.Get("courier_name"), Station: model.Station(strings.TrimSpace(v.Get("station")))}

	packet, found := s.opts.Engine.Packet(key, q)
	if !found {
		writeError(w, http.StatusNotFound, "packet not found")
		return
	}
	writeJSON(w, http.StatusOK, packet)
}

type selectRequest struct {
	CourierName string        `json:"courier_name"`
	Station     model.Station `json:"station"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourierName == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := identityFrom(r.Context())
	if !ownsCourier(id, model.ParseCourier(req.CourierName)) {
		writeError(w, http.StatusForbidden, "not your packet")
		return
	}

	packet, err := s.opts.Engine.SelectPacket(r.Context(), model.PacketKey{CourierName: req.CourierName, Station: req.Station})
	if errors.Is(err, engine.ErrPacketNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("select packet", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not start packet")
		return
	}
	writeJSON(w, http.StatusOK, packet)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	t, ok := s.opts.Engine.Task(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !ownsCourier(identityFrom(r.Context()), t.Courier) {
		writeError(w, http.StatusForbidden, "not your task")
		return
	}

	t, err := s.opts.Engine.CompleteTask(r.Context(), taskID)
	if errors.Is(err, engine.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("complete task", slog.String("task_id", taskID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not complete task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type refreshResponse struct {
	engine.RefreshResult
	DurationMS int64                    `json:"duration_ms"`
	Errors     map[model.Station]string `json:"errors,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Scheduler.Trigger(r.Context())
	switch {
	case errors.Is(err, engine.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, engine.ErrNoStations):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("refresh", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	out := refreshResponse{RefreshResult: res, DurationMS: res.Duration.Milliseconds()}
	if len(res.Errors) > 0 {
		out.Errors = make(map[model.Station]string, len(res.Errors))
		for st, e := range res.Errors {
			out.Errors[st] = e.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type stationView struct {
	engine.Progress
	Stale       bool   `json:"stale"`
	LastError   string `json:"last_error,omitempty"`
	LastSuccess string `json:"last_success,omitempty"`
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	e := s.opts.Engine
	tasks := engine.Filter(e.Snapshot(), queryFor(identityFrom(r.Context())))
	progress := engine.StationProgress(tasks, e.Stations())
	states := e.StationStates()

	out := make([]stationView, len(progress))
	for i, p := range progress {
		out[i] = stationView{Progress: p, Stale: states[i].Stale, LastError: states[i].LastError}
		if !states[i].LastSuccess.IsZero() {
			out[i].LastSuccess = states[i].LastSuccess.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stations":   out,
		"refreshing": e.Refreshing(),
	})
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"text": s.opts.Engine.Insight()})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.opts.Profiles == nil {
		writeError(w, http.StatusNotImplemented, "profiles are disabled")
		return
	}
	id := identityFrom(r.Context())
	p, err := s.opts.Profiles.Get(r.Context(), id.ID)
	if errors.Is(err, profile.ErrNotFound) {
		writeJSON(w, http.StatusOK, profile.Profile{ID: id.ID})
		return
	}
	if err != nil {
		s.logger.Error("load profile", slog.String("id", id.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	if s.opts.Profiles == nil {
		writeError(w, http.StatusNotImplemented, "profiles are disabled")
		return
	}
	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := identityFrom(r.Context())
	saved, err := s.opts.Profiles.Save(r.Context(), id.ID, p)
	if err != nil {
		s.logger.Error("save profile", slog.String("id", id.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not save profile")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type autoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var req autoRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.opts.Scheduler.SetAutoRefresh(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.opts.Scheduler.AutoRefresh()})
}
