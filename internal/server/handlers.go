package server

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TobiSchelling/catchfeed/internal/engine"
	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

type likeRequest struct {
	UserID string `json:"userId"`
}

type likeResponse struct {
	CatchID   string `json:"catchId"`
	LikeCount int    `json:"likeCount"`
}

type reportRequest struct {
	UserID      string                  `json:"userId"`
	HarvestDate string                  `json:"harvestDate"`
	PhotoURL    *string                 `json:"photoUrl"`
	AreaLabel   *string                 `json:"areaLabel"`
	Counts      harvest.AggregateCounts `json:"counts"`
	Items       harvest.ItemizedCatches `json:"items"`
}

type stepResponse struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

type updateResponse struct {
	Success             bool                  `json:"success"`
	SpeciesStatsUpdated bool                  `json:"speciesStatsUpdated"`
	UserStatsUpdated    bool                  `json:"userStatsUpdated"`
	FailedSpecies       []harvest.Species     `json:"failedSpecies,omitempty"`
	AchievementsAwarded []harvest.Achievement `json:"achievementsAwarded"`
	Error               string                `json:"error,omitempty"`
	Steps               []stepResponse        `json:"steps"`
}

type reportResponse struct {
	ID     string         `json:"id"`
	Update updateResponse `json:"update"`
}

type backfillResponse struct {
	Success             bool                  `json:"success"`
	TotalReports        int                   `json:"totalReports"`
	TotalFish           int                   `json:"totalFish"`
	SpeciesUpdated      int                   `json:"speciesUpdated"`
	AchievementsAwarded []harvest.Achievement `json:"achievementsAwarded"`
	Error               string                `json:"error,omitempty"`
	Steps               []stepResponse        `json:"steps"`
}

type leaderboardResponse struct {
	WindowDays int                 `json:"windowDays"`
	Anglers    []harvest.TopAngler `json:"anglers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"))
	if err != nil || offset < 0 {
		WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil || limit < 0 {
		WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	page := s.engine.FetchRecentCatches(r.Context(), feed.PageRequest{
		Offset:       offset,
		Limit:        limit,
		ForceRefresh: refresh,
	})
	page.Entries = s.engine.EnrichCatchesWithLikes(r.Context(), page.Entries, q.Get("viewer"))
	if page.Entries == nil {
		page.Entries = []harvest.CatchFeedEntry{}
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearCatchFeedCache(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.engine.FetchAnglerProfile(r.Context(), chi.URLParam(r, "userID"))
	if !ok {
		WriteError(w, http.StatusNotFound, "Angler not found")
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.FetchAnglerAchievements(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load achievements")
		return
	}
	if list == nil {
		list = []harvest.Achievement{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	top := s.engine.FetchTopAnglers(r.Context())
	if top == nil {
		top = []harvest.TopAngler{}
	}
	WriteJSON(w, http.StatusOK, leaderboardResponse{
		WindowDays: s.engine.LeaderboardWindowDays(),
		Anglers:    top,
	})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.changeLike(w, r, s.engine.LikeCatch)
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	s.changeLike(w, r, s.engine.UnlikeCatch)
}

func (s *Server) changeLike(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, catchID, userID string) (int, error)) {
	catchID := chi.URLParam(r, "catchID")
	var req likeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	count, err := change(r.Context(), catchID, req.UserID)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "Failed to update like")
		return
	}
	WriteJSON(w, http.StatusOK, likeResponse{CatchID: catchID, LikeCount: count})
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	harvestDate, err := time.Parse(harvest.DateLayout, req.HarvestDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "harvestDate must be YYYY-MM-DD")
		return
	}

	report := harvest.Report{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		HarvestDate: harvestDate,
		CreatedAt:   time.Now().UTC(),
		PhotoURL:    req.PhotoURL,
		AreaLabel:   req.AreaLabel,
		Counts:      req.Counts,
		Items:       req.Items,
	}
	res, err := s.engine.SubmitReport(r.Context(), report)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "Failed to store report")
		return
	}
	WriteJSON(w, http.StatusCreated, reportResponse{ID: report.ID, Update: toUpdateResponse(res)})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	res := s.engine.BackfillUserStatsFromReports(r.Context(), chi.URLParam(r, "userID"))
	out := backfillResponse{
		Success:             res.Success,
		TotalReports:        res.TotalReports,
		TotalFish:           res.TotalFish,
		SpeciesUpdated:      res.SpeciesUpdated,
		AchievementsAwarded: nonNil(res.AchievementsAwarded),
		Error:               errString(res.Err),
		Steps:               toSteps(res.Steps),
	}
	WriteJSON(w, http.StatusOK, out)
}

type digestPage struct {
	Title  string
	Window string
	Body   template.HTML
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	d := s.composer.Compose(r.Context(), s.opts.DigestEntries)

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(d.Markdown()))
		return
	}

	html, err := d.HTML()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render digest")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := digestPage{
		Title:  "Weekly Catch Digest",
		Window: d.Window(),
		Body:   template.HTML(html), //nolint: gosec
	}
	if err := s.digestTmpl.Execute(w, page); err != nil {
		slog.Error("Rendering digest", slog.Any("error", err))
	}
}

func toUpdateResponse(res *engine.UpdateResult) updateResponse {
	return updateResponse{
		Success:             res.Success,
		SpeciesStatsUpdated: res.SpeciesStatsUpdated,
		UserStatsUpdated:    res.UserStatsUpdated,
		FailedSpecies:       res.FailedSpecies,
		AchievementsAwarded: nonNil(res.AchievementsAwarded),
		Error:               errString(res.Err),
		Steps:               toSteps(res.Steps),
	}
}

func toSteps(steps []engine.StepResult) []stepResponse {
	out := make([]stepResponse, len(steps))
	for i, st := range steps {
		out[i] = stepResponse{Name: st.Name, Summary: st.Summary, Error: errString(st.Err)}
	}
	return out
}

func nonNil(list []harvest.Achievement) []harvest.Achievement {
	if list == nil {
		return []harvest.Achievement{}
	}
	return list
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
