package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/breathe-app/breathe/internal/app/engagement"
	"github.com/breathe-app/breathe/internal/domain"
)

// defaultLogWindow is the number of days /logs returns without a range.
const defaultLogWindow = 30

// ─── Profile ────────────────────────────────────────────────────────────────

type profileResponse struct {
	Profile *domain.UserProfile      `json:"profile"`
	Level   engagement.LevelProgress `json:"level"`
	Points  string                   `json:"points_display"`
}

func (s *Server) profileResponse(p *domain.UserProfile) profileResponse {
	return profileResponse{
		Profile: p,
		Level:   engagement.ProgressFor(p.TotalPoints),
		Points:  s.engine.Format.Points(p.TotalPoints),
	}
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.profileResponse(p))
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var p domain.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.UserID = userID

	saved, err := s.engine.Profiles.Save(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	unlocked := s.engine.AfterAction(r.Context(), userID, "profile")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":  s.profileResponse(saved),
		"unlocked": unlocked,
	})
}

// ─── Daily Logs ─────────────────────────────────────────────────────────────

type logRequest struct {
	Date             *civil.Date `json:"date,omitempty"`
	CigarettesSmoked int         `json:"cigarettes_smoked"`
	CravingsCount    int         `json:"cravings_count"`
	MoodRating       int         `json:"mood_rating"`
	StressLevel      int         `json:"stress_level"`
	Notes            string      `json:"notes"`
}

func (s *Server) handleSaveLog(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date := req.Date
	if date == nil {
		today, err := s.engine.Logs.Today(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		date = &today
	}

	res, err := s.engine.Logs.Save(r.Context(), domain.DailyLogEntry{
		UserID:           userID,
		Date:             *date,
		CigarettesSmoked: req.CigarettesSmoked,
		CravingsCount:    req.CravingsCount,
		MoodRating:       req.MoodRating,
		StressLevel:      req.StressLevel,
		Notes:            req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	unlocked := s.engine.AfterAction(r.Context(), userID, "log")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   res,
		"unlocked": unlocked,
	})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	to, err := dateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to == nil {
		today, err := s.engine.Logs.Today(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		to = &today
	}
	from, err := dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from == nil {
		start := to.AddDays(-(defaultLogWindow - 1))
		from = &start
	}

	entries, err := s.engine.Logs.List(r.Context(), userID, *from, *to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.DailyLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":    *from,
		"to":      *to,
		"entries": entries,
	})
}

// ─── Streak & Snapshot ──────────────────────────────────────────────────────

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Logs.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	snap, err := s.engine.Aggregator.Aggregate(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var points int64
	if p, err := s.engine.Profiles.Get(r.Context(), userID); err == nil {
		points = p.TotalPoints
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":        snap,
		"savings_display": s.engine.Format.Money(snap.SavingsAmount),
		"currency":        s.engine.Format.Currency(),
		"level":           engagement.ProgressFor(points),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.Evaluator.Evaluate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"unlocked": ids})
}

// ─── Achievements ───────────────────────────────────────────────────────────

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":        s.engine.Achievements.TotalCount(),
		"achievements": s.engine.Achievements.Definitions(),
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var (
		views []engagement.AchievementView
		err   error
	)
	if r.URL.Query().Get("unseen") == "true" {
		views, err = s.engine.Achievements.Unseen(r.Context(), userID)
	} else {
		views, err = s.engine.Achievements.List(r.Context(), userID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if views == nil {
		views = []engagement.AchievementView{}
	}

	unlocked := 0
	for _, v := range views {
		if v.Unlocked {
			unlocked++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": views,
		"unlocked":     unlocked,
		"total":        s.engine.Achievements.TotalCount(),
	})
}

func (s *Server) handleAchievement(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.Achievements.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAchievementSeen(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Achievements.MarkSeen(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Activity Events ────────────────────────────────────────────────────────

func (s *Server) handleAIMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.engine.Activity.RecordAIMessage(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": s.engine.AfterAction(r.Context(), userID, "ai_message"),
	})
}

func (s *Server) handleAudioSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.engine.Activity.RecordAudioSession(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": s.engine.AfterAction(r.Context(), userID, "audio_session"),
	})
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	completed, err := s.engine.Activity.CompleteChallenge(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed": completed,
		"unlocked":  s.engine.AfterAction(r.Context(), userID, "challenge"),
	})
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	notifs, err := s.engine.Notifications.Pending(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if notifs == nil {
		notifs = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifs,
		"count":         len(notifs),
	})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Notifications.MarkShown(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("metric")
	if name == "" {
		name = string(domain.MetricPoints)
	}
	metric, err := domain.ParseLeaderboardMetric(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.engine.Ranker.Top(r.Context(), metric, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.LeaderboardRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric": metric,
		"rows":   rows,
	})
}

// ─── Query Helpers ──────────────────────────────────────────────────────────

func dateParam(r *http.Request, name string) (*civil.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: want YYYY-MM-DD", name, v)
	}
	return &d, nil
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
