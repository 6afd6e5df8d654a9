package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"habit-quest/internal/service"
)

const defaultRunsLimit = 20

func (h *Handler) ensureUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	user, created, err := h.deps.Accounts.EnsureUser(r.Context(), userIDFrom(r.Context()), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.deps.Accounts.Profile(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) topUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := h.deps.Accounts.TopUsers(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) createMission(w http.ResponseWriter, r *http.Request) {
	var req service.NewMission
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	mission, err := h.deps.Missions.Create(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mission)
}

func (h *Handler) listMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.deps.Missions.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

func (h *Handler) completeMission(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Missions.Complete(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) progressMission(w http.ResponseWriter, r *http.Request) {
	mission, err := h.deps.Missions.IncrementProgress(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (h *Handler) deleteMission(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Missions.Delete(r.Context(), mux.Vars(r)["id"], userIDFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dailyLog(w http.ResponseWriter, r *http.Request) {
	log, err := h.deps.Accounts.DailyLog(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["date"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *Handler) logWorkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Exercise string `json:"exercise"`
		Weight   int64  `json:"weight"`
		Reps     int    `json:"reps"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	set, err := h.deps.Accounts.LogWorkout(r.Context(), userIDFrom(r.Context()), req.Exercise, req.Weight, req.Reps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (h *Handler) logCalories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Calories int64 `json:"calories"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Accounts.LogCalories(r.Context(), userIDFrom(r.Context()), req.Calories); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) searchClans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.deps.Clans.Search(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) createClan(w http.ResponseWriter, r *http.Request) {
	var req service.NewClan
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	clan, err := h.deps.Clans.Create(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clan)
}

func (h *Handler) getClan(w http.ResponseWriter, r *http.Request) {
	clanID := mux.Vars(r)["id"]
	clan, err := h.deps.Clans.Get(r.Context(), clanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := h.deps.Clans.Members(r.Context(), clanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clan.MemberCount = len(members)
	writeJSON(w, http.StatusOK, map[string]any{"clan": clan, "members": members})
}

func (h *Handler) myClan(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Weekly.GetMyClan(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) joinClan(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Clans.Join(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leaveClan(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Clans.Leave(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) kickMember(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Clans.Kick(r.Context(), userIDFrom(r.Context()), target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRank(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Rank int `json:"rank"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Clans.SetRank(r.Context(), userIDFrom(r.Context()), target, req.Rank); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) claimClanEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier int `json:"tier"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.deps.Weekly.ClaimEventReward(r.Context(), userIDFrom(r.Context()), req.Tier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) eventProgress(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Track.Progress(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) claimMilestone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64 `json:"points"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.deps.Track.ClaimMilestone(r.Context(), userIDFrom(r.Context()), req.Points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runMaintenance executes the nightly job synchronously. A run already
// recorded for today is reported as skipped rather than as an error.
func (h *Handler) runMaintenance(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Maintenance.Run(r.Context(), service.TriggerEndpoint)
	if errors.Is(err, service.ErrMaintenanceAlreadyRan) {
		writeJSON(w, http.StatusOK, map[string]any{"skipped": true, "reason": service.PublicMessage(err)})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) maintenanceRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := h.deps.Maintenance.LastRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, service.Validationf("%s must be an integer", key)
	}
	return n, nil
}

func pathUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil || id <= 0 {
		return 0, service.Validationf("invalid user id")
	}
	return id, nil
}
