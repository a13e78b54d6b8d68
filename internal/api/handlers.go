package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/goodtune/reelfocus/internal/session"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/gorilla/mux"
)

const maxWeeklyDays = 90

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Engine.Healthy(s.config.HealthWindow) {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stalled"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name, err := session.ParseCommandName(mux.Vars(r)["command"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CommandRequest
	if err := decodeJSON(r, &req, true); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Minutes < 0 {
		WriteError(w, http.StatusBadRequest, "minutes must not be negative")
		return
	}

	ack := s.deps.Engine.Submit(r.Context(), session.Command{
		Name:     name,
		Duration: time.Duration(req.Minutes) * time.Minute,
	})
	if !ack.Accepted {
		WriteJSON(w, http.StatusConflict, ack)
		return
	}
	WriteJSON(w, http.StatusOK, ack)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	granted := s.deps.Permission != nil && s.deps.Permission.HasPermission(r.Context())
	WriteJSON(w, http.StatusOK, PermissionResponse{Granted: granted})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		WriteError(w, http.StatusConflict, "Usage reports are not accepted by the configured detector source")
		return
	}

	var report UsageReport
	if err := decodeJSON(r, &report, false); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if report.PackageID == "" && report.Permission == nil {
		WriteError(w, http.StatusBadRequest, "package_id or permission is required")
		return
	}

	if report.Permission != nil {
		s.deps.Usage.SetPermission(*report.Permission)
	}
	if report.PackageID != "" {
		s.deps.Usage.Report(detect.UsageEvent{PackageID: report.PackageID, LastUsed: report.LastUsed})
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PackageID == "" {
		WriteError(w, http.StatusBadRequest, "package_id is required")
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		WriteError(w, http.StatusBadRequest, "confidence must be between 0 and 1")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.deps.Clock.Now()
	}

	result := detect.Result{
		PackageID:  req.PackageID,
		Engaged:    req.Engaged,
		Confidence: req.Confidence,
		Method:     detect.MethodPattern,
		Timestamp:  req.Timestamp,
	}
	s.deps.Signals.Publish(result)
	WriteJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleSignalTree(w http.ResponseWriter, r *http.Request) {
	var req TreeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PackageID == "" {
		WriteError(w, http.StatusBadRequest, "package_id is required")
		return
	}
	if req.CapturedAt.IsZero() {
		req.CapturedAt = s.deps.Clock.Now()
	}

	result, analysis := s.deps.Signals.PublishTree(s.deps.Matcher, &req.Root, req.PackageID, req.CapturedAt)
	WriteJSON(w, http.StatusOK, TreeResponse{Result: result, Analysis: analysis})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Settings.LoadConfig(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load config")
		WriteError(w, http.StatusInternalServerError, "Failed to load configuration")
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg storage.AppConfig
	if err := decodeJSON(r, &cfg, false); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Settings.SaveConfig(r.Context(), cfg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save config")
		WriteError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}
	if err := s.deps.Engine.ReloadConfig(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Saved config not applied to the running engine")
	}

	s.logger.Info().
		Int("max_sessions", cfg.MaxSessionsDaily).
		Str("limit_type", string(cfg.DefaultLimitType)).
		Int("limit_value", cfg.DefaultLimitValue).
		Msg("Configuration updated")
	WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.HistoryFilter{
		Date:       query.Get("date"),
		AppPackage: query.Get("app"),
	}

	if filter.Date != "" {
		if _, err := time.Parse(storage.DateLayout, filter.Date); err != nil {
			WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.deps.History.GetHistory(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list history")
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.ClearHistory(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear history")
		WriteError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	WriteJSON(w, http.StatusOK, SuccessResponse{Message: "History cleared"})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if strings.EqualFold(date, "today") {
		date = storage.DateKey(s.deps.Clock.Now())
	}
	if _, err := time.Parse(storage.DateLayout, date); err != nil {
		WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or today")
		return
	}

	stats, err := s.deps.History.GetDailyStats(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to compute daily stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWeeklyStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxWeeklyDays {
			WriteError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = n
	}

	stats, err := s.deps.History.GetWeeklyStats(r.Context(), days)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute weekly stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"days":  stats,
		"count": len(stats),
	})
}

func (s *Server) handleAppStats(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	stats, err := s.deps.History.GetAppTotalStats(r.Context(), pkg)
	if err != nil {
		s.logger.Error().Err(err).Str("package", pkg).Msg("Failed to compute app stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}
	if stats == nil {
		WriteError(w, http.StatusNotFound, "No sessions recorded for "+pkg)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
