package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// CompetitionSource returns the current competition status.
type CompetitionSource interface {
	CompetitionStatus(ctx context.Context) (domain.CompetitionStatus, error)
}

// StatusInfo is the static part of the bot status.
type StatusInfo struct {
	Mode       string
	DryRun     bool
	Strategies []string
	StartedAt  time.Time
}

// StatusHandler serves the bot status.
type StatusHandler struct {
	info        StatusInfo
	competition CompetitionSource
	logger      *slog.Logger
	now         func() time.Time
}

// NewStatusHandler creates a StatusHandler. competition may be nil.
func NewStatusHandler(info StatusInfo, competition CompetitionSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{info: info, competition: competition, logger: logger, now: time.Now}
}

type statusResponse struct {
	Mode          string                    `json:"mode"`
	DryRun        bool                      `json:"dry_run"`
	Strategies    []string                  `json:"strategies"`
	StartedAt     time.Time                 `json:"started_at"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Competition   *domain.CompetitionStatus `json:"competition,omitempty"`
}

// GetStatus responds with the run mode, strategies, uptime and, when
// available, the competition status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.info.Mode,
		DryRun:        h.info.DryRun,
		Strategies:    h.info.Strategies,
		StartedAt:     h.info.StartedAt,
		UptimeSeconds: max(int64(h.now().Sub(h.info.StartedAt).Seconds()), 0),
	}
	if resp.Strategies == nil {
		resp.Strategies = []string{}
	}
	if h.competition != nil {
		cs, err := h.competition.CompetitionStatus(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: competition status failed",
				slog.String("error", err.Error()),
			)
		} else {
			resp.Competition = &cs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
