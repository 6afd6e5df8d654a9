package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-quest/internal/config"
	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
	"habit-quest/internal/service"
	"habit-quest/internal/service/servicetest"
)

const testSecret = "s3cret"

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

type apiEnv struct {
	db     *servicetest.DB
	clock  *clock.Fixed
	router http.Handler
}

func newAPIEnv(t *testing.T, rl config.RateLimitConfig) *apiEnv {
	t.Helper()

	db := servicetest.New()
	clk := clock.NewFixed(time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC))
	ledger := service.NewLedger(db.Users())
	missions := service.NewMissionService(db.Missions(), db.Logs(), ledger, clk)
	track := service.NewEventTrack(db.EventProgress(), ledger, clk)
	missions.Subscribe(service.NewSynergy(db.Missions()))
	missions.Subscribe(track)

	router := NewRouter(Deps{
		Accounts:          service.NewAccountService(db.Users(), db.Logs(), db.Activity(), ledger, clk),
		Missions:          missions,
		Clans:             service.NewClanService(db.Clans(), clk, 10),
		Weekly:            service.NewWeeklyEvents(db.Clans(), db.Activity(), ledger, progression.DefaultEvents, clk),
		Track:             track,
		Maintenance:       service.NewMaintenance(db.Missions(), db.Users(), db.Logs(), db.Runs(), clk),
		Health:            fakeHealth{},
		MaintenanceSecret: testSecret,
		RateLimit:         rl,
	})
	return &apiEnv{db: db, clock: clk, router: router}
}

func (e *apiEnv) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set(UserIDHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_Healthz(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	down := NewRouter(Deps{Health: fakeHealth{err: errors.New("db down")}})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Identity(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})

	rec := env.do(t, http.MethodGet, "/api/users/me", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set(UserIDHeader, "abc")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/me", 42, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decode[errorResponse](t, rec).Error)
}

func TestRouter_EnsureUserAndProfile(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})

	rec := env.do(t, http.MethodPost, "/api/users", 7, map[string]string{"username": "ana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ana", decode[model.User](t, rec).Username)

	rec = env.do(t, http.MethodPost, "/api/users", 7, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/me", 7, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[model.User](t, rec)
	assert.Equal(t, int64(7), me.ID)
	assert.Equal(t, 1, me.Level)

	rec = env.do(t, http.MethodPost, "/api/users", 7, map[string]any{"nickname": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_MissionFlow(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})
	env.db.AddUser(1)
	env.db.AddUser(2)

	rec := env.do(t, http.MethodPost, "/api/missions", 1, service.NewMission{
		Title: "Read", Frequency: model.FrequencyDaily, Kind: model.KindHabit,
		Difficulty: model.DifficultyEasy, Target: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	mission := decode[model.Mission](t, rec)

	rec = env.do(t, http.MethodPost, "/api/missions", 1, map[string]any{"title": "", "frequency": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/missions", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Mission](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/missions/"+mission.ID+"/complete", 2, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/missions/"+mission.ID+"/complete", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[service.CompletionResult](t, rec)
	assert.Equal(t, service.OutcomeCompleted, result.Outcome)
	assert.True(t, result.Mission.Completed)

	rec = env.do(t, http.MethodPost, "/api/missions/"+mission.ID+"/complete", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeAlreadyCompleted, decode[service.CompletionResult](t, rec).Outcome)

	rec = env.do(t, http.MethodGet, "/api/logs/2026-10-14", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[model.DailyLog](t, rec).MissionStats.Completed)

	rec = env.do(t, http.MethodGet, "/api/logs/not-a-date", 1, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/missions/"+mission.ID, 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/missions/"+mission.ID, 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ClanFlow(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})
	env.db.AddUser(1)
	env.db.AddUser(2)

	rec := env.do(t, http.MethodPost, "/api/clans", 1, service.NewClan{Name: "Larks", MinLevel: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	clan := decode[model.Clan](t, rec)

	rec = env.do(t, http.MethodPost, "/api/clans/"+clan.ID+"/join", 2, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/"+clan.ID+"/join", 2, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/clans/mine", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[service.ClanView](t, rec)
	assert.Equal(t, clan.ID, view.Clan.ID)
	assert.Len(t, view.Members, 2)

	rec = env.do(t, http.MethodGet, "/api/clans/"+clan.ID, 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/clans?q=lark&limit=5", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[service.ClanPage](t, rec).Clans, 1)

	rec = env.do(t, http.MethodGet, "/api/clans?limit=many", 2, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/members/1/kick", 2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/members/2/rank", 1, map[string]int{"rank": model.RankOfficer})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/event/claim", 2, map[string]int{"tier": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/event/claim", 2, map[string]int{"tier": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/members/2/kick", 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/leave", 2, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/clans/leave", 1, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_EventTrackAndActivity(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})
	env.db.AddUser(1)

	rec := env.do(t, http.MethodGet, "/api/events/progress", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events/claim", 1, map[string]int64{"points": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/workouts", 1, map[string]any{"exercise": "squat", "weight": 100, "reps": 5})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/workouts", 1, map[string]any{"exercise": "", "weight": 100, "reps": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/calories", 1, map[string]int64{"calories": 500})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/top?limit=3", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.User](t, rec), 1)
}

func TestRouter_Maintenance(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})

	rec := env.do(t, http.MethodPost, "/internal/maintenance/run", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/run", nil)
	req.Header.Set(MaintenanceSecretHeader, testSecret)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[model.MaintenanceRun](t, rec)
	assert.Equal(t, "2026-10-14", run.RunDate)
	assert.Equal(t, model.RunStatusDone, run.Status)

	rec = env.do(t, http.MethodPost, "/internal/maintenance/run?secret="+testSecret, 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["skipped"])

	rec = env.do(t, http.MethodGet, "/internal/maintenance/runs?secret="+testSecret, 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.MaintenanceRun](t, rec), 1)

	disabled := NewRouter(Deps{})
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/run?secret=", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{RPS: 0.001, Burst: 2})
	env.db.AddUser(1)
	env.db.AddUser(2)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/missions", 1, nil).Code)
	}
	rec := env.do(t, http.MethodGet, "/api/missions", 1, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/missions", 2, nil).Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t, config.RateLimitConfig{})
	rec := env.do(t, http.MethodPut, "/api/missions", 1, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
