// Package servicetest provides an in-memory implementation of the service
// stores for tests.
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"habit-quest/internal/model"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
)

// DB is an in-memory stand-in for the postgres repositories. Every method
// takes the single mutex, which gives the same atomicity the SQL statements do.
type DB struct {
	mu sync.Mutex

	users         map[int64]*model.User
	missions      map[string]*model.Mission
	logs          map[string]*model.DailyLog
	clans         map[string]*model.Clan
	members       map[int64]*model.ClanMember
	claims        []model.EventClaim
	contributions map[string]map[int64]int64
	workouts      []*model.WorkoutSet
	progress      map[string]*model.UserEventProgress
	runs          map[string]*model.MaintenanceRun

	// FailApply makes ApplyProgress fail, for rollback tests.
	FailApply error
	// FailListOpen makes ListOpenByFrequencies fail.
	FailListOpen error
	// FailAdvance makes Advance fail for the listed mission ids.
	FailAdvance map[string]bool
}

// New returns an empty store.
func New() *DB {
	return &DB{
		users:         make(map[int64]*model.User),
		missions:      make(map[string]*model.Mission),
		logs:          make(map[string]*model.DailyLog),
		clans:         make(map[string]*model.Clan),
		members:       make(map[int64]*model.ClanMember),
		contributions: make(map[string]map[int64]int64),
		progress:      make(map[string]*model.UserEventProgress),
		runs:          make(map[string]*model.MaintenanceRun),
		FailAdvance:   make(map[string]bool),
	}
}

// Users, Missions and the other accessors return store views over db.
func (db *DB) Users() UserStore { return UserStore{db} }
func (db *DB) Missions() MissionStore { return MissionStore{db} }
func (db *DB) Logs() DailyLogStore { return DailyLogStore{db} }
func (db *DB) Clans() ClanStore { return ClanStore{db} }
func (db *DB) Activity() ActivityStore { return ActivityStore{db} }
func (db *DB) EventProgress() EventProgressStore { return EventProgressStore{db} }
func (db *DB) Runs() RunStore { return RunStore{db} }

// SetXP overwrites a user's xp without running the level-up loop.
func (db *DB) SetXP(id int64, xp int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id].CurrentXP = xp
}

// AddUser seeds a fresh level-1 user.
func (db *DB) AddUser(id int64) *model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := &model.User{
		ID:          id,
		Username:    fmt.Sprintf("user%d", id),
		Level:       1,
		NextLevelXP: progression.NextLevelXP(1),
		HP:          progression.DefaultMaxHP,
		MaxHP:       progression.DefaultMaxHP,
	}
	db.users[id] = u
	return db.userCopy(u)
}

func (db *DB) User(id int64) *model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.userCopy(db.users[id])
}

func (db *DB) Mission(id string) *model.Mission {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.missions[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (db *DB) Clan(id string) *model.Clan {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.clans[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (db *DB) SetContribution(clanID string, userID int64, value int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.contributions[clanID] == nil {
		db.contributions[clanID] = make(map[int64]int64)
	}
	db.contributions[clanID][userID] = value
}

func (db *DB) userCopy(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.ClanID, cp.ClanRank = nil, 0
	if m, ok := db.members[u.ID]; ok {
		clanID := m.ClanID
		cp.ClanID = &clanID
		cp.ClanRank = m.Rank
	}
	return &cp
}

func logKey(userID int64, date string) string {
	return fmt.Sprintf("%d|%s", userID, date)
}

// users

type UserStore struct{ db *DB }

func (s UserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return s.db.userCopy(u), nil
}

func (s UserStore) GetOrCreate(ctx context.Context, id int64, username string) (*model.User, bool, error) {
	if u, err := s.GetByID(ctx, id); err == nil {
		return u, false, nil
	}
	u := s.db.AddUser(id)
	s.db.mu.Lock()
	s.db.users[id].Username = username
	s.db.mu.Unlock()
	u.Username = username
	return u, true, nil
}

func (s UserStore) ApplyProgress(_ context.Context, id int64, mutate func(u *model.User) (int64, error)) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.FailApply != nil {
		return nil, s.db.FailApply
	}
	stored, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := s.db.userCopy(stored)
	delta, err := mutate(u)
	if err != nil {
		return nil, err
	}
	stored.Level, stored.CurrentXP, stored.NextLevelXP = u.Level, u.CurrentXP, u.NextLevelXP
	stored.Coins, stored.GameCoins, stored.HP, stored.MaxHP = u.Coins, u.GameCoins, u.HP, u.MaxHP
	if m, ok := s.db.members[id]; ok && delta != 0 {
		c := s.db.clans[m.ClanID]
		c.TotalPower = max(c.TotalPower+delta, 0)
	}
	return s.db.userCopy(stored), nil
}

func (s UserStore) DamageHP(_ context.Context, id int64, damage int) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.HP = max(u.HP-damage, 0)
	return s.db.userCopy(u), nil
}

func (s UserStore) GetTopUsers(_ context.Context, limit int) ([]*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.User
	for _, u := range s.db.users {
		out = append(out, s.db.userCopy(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		if out[i].CurrentXP != out[j].CurrentXP {
			return out[i].CurrentXP > out[j].CurrentXP
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s UserStore) UpdateUsername(_ context.Context, id int64, username string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Username = username
	return nil
}

// missions

type MissionStore struct{ db *DB }

func (s MissionStore) Create(_ context.Context, m *model.Mission) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *m
	s.db.missions[m.ID] = &cp
	return nil
}

func (s MissionStore) GetByID(_ context.Context, id string) (*model.Mission, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.missions[id]
	if !ok {
		return nil, repository.ErrMissionNotFound
	}
	cp := *m
	return &cp, nil
}

func (s MissionStore) ListByUser(_ context.Context, userID int64) ([]*model.Mission, error) {
	return s.list(func(m *model.Mission) bool { return m.UserID == userID }), nil
}

func (s MissionStore) list(keep func(m *model.Mission) bool) []*model.Mission {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.Mission
	for _, m := range s.db.missions {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s MissionStore) CompareAndSwap(_ context.Context, id string, expect, next model.MissionState, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.missions[id]
	if !ok || m.State() != expect {
		return false, nil
	}
	m.Progress, m.Completed, m.LastUpdated = next.Progress, next.Completed, at
	return true, nil
}

func (s MissionStore) Advance(_ context.Context, id string, at time.Time) (*model.Mission, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.FailAdvance[id] {
		return nil, errors.New("advance failed")
	}
	m, ok := s.db.missions[id]
	if !ok || m.Completed || m.Progress >= m.Target {
		return nil, nil
	}
	m.Progress++
	m.Completed = m.Progress >= m.Target
	m.LastUpdated = at
	cp := *m
	return &cp, nil
}

func (s MissionStore) ListOpenByTitle(_ context.Context, userID int64, title, excludeID string) ([]*model.Mission, error) {
	return s.list(func(m *model.Mission) bool {
		return m.UserID == userID && m.Title == title && m.ID != excludeID && !m.Completed
	}), nil
}

func (s MissionStore) ListOpenByFrequencies(_ context.Context, freqs []model.Frequency) ([]*model.Mission, error) {
	if s.db.FailListOpen != nil {
		return nil, s.db.FailListOpen
	}
	return s.list(func(m *model.Mission) bool {
		return !m.Completed && slices.Contains(freqs, m.Frequency)
	}), nil
}

func (s MissionStore) ResetHabits(_ context.Context, freq model.Frequency, at time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, m := range s.db.missions {
		if m.Frequency == freq && m.Kind == model.KindHabit {
			m.Progress, m.Completed, m.LastUpdated = 0, false, at
			n++
		}
	}
	return n, nil
}

func (s MissionStore) DeleteTemporals(_ context.Context, freq model.Frequency) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, m := range s.db.missions {
		if m.Frequency == freq && m.Kind == model.KindTemporal {
			delete(s.db.missions, id)
			n++
		}
	}
	return n, nil
}

func (s MissionStore) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.missions[id]; !ok {
		return repository.ErrMissionNotFound
	}
	delete(s.db.missions, id)
	return nil
}

// daily logs

type DailyLogStore struct{ db *DB }

func (s DailyLogStore) entry(userID int64, date string) *model.DailyLog {
	key := logKey(userID, date)
	dl, ok := s.db.logs[key]
	if !ok {
		dl = &model.DailyLog{UserID: userID, Date: date, MissionStats: model.MissionStats{ListCompleted: []model.MissionSnapshot{}}}
		s.db.logs[key] = dl
	}
	return dl
}

func (s DailyLogStore) Append(_ context.Context, userID int64, date string, e repository.LogEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	dl := s.entry(userID, date)
	dl.MissionStats.Completed += e.Completed
	dl.MissionStats.ListCompleted = append(dl.MissionStats.ListCompleted, e.Snapshots...)
	dl.Gains.Coins += e.Coins
	dl.Gains.XP += e.XP
	dl.Gains.Lives += e.Lives
	total := 0
	for _, m := range s.db.missions {
		if m.UserID == userID && m.Frequency == model.FrequencyDaily {
			total++
		}
	}
	dl.MissionStats.Total = total
	return nil
}

func (s DailyLogStore) AddCalories(_ context.Context, userID int64, date string, calories int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.entry(userID, date).Calories += calories
	return nil
}

func (s DailyLogStore) Get(_ context.Context, userID int64, date string) (*model.DailyLog, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	dl, ok := s.db.logs[logKey(userID, date)]
	if !ok {
		return nil, repository.ErrDailyLogNotFound
	}
	cp := *dl
	cp.MissionStats.ListCompleted = slices.Clone(dl.MissionStats.ListCompleted)
	return &cp, nil
}

// clans

type ClanStore struct{ db *DB }

func (s ClanStore) Create(_ context.Context, clan *model.Clan) (*model.Clan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	leader, ok := s.db.users[clan.LeaderID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if _, ok := s.db.members[clan.LeaderID]; ok {
		return nil, repository.ErrAlreadyInClan
	}
	for _, c := range s.db.clans {
		if c.Name == clan.Name {
			return nil, repository.ErrClanNameTaken
		}
	}
	cp := *clan
	cp.TotalPower = progression.MemberPower(leader.Level)
	cp.MemberCount = 1
	s.db.clans[cp.ID] = &cp
	s.db.members[clan.LeaderID] = &model.ClanMember{ClanID: cp.ID, UserID: clan.LeaderID, Rank: model.RankLeader, JoinedAt: clan.CreatedAt}
	out := cp
	return &out, nil
}

func (s ClanStore) GetByID(_ context.Context, id string) (*model.Clan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.clans[id]
	if !ok {
		return nil, repository.ErrClanNotFound
	}
	cp := *c
	cp.MemberCount = s.countMembers(id)
	return &cp, nil
}

func (s ClanStore) countMembers(clanID string) int {
	n := 0
	for _, m := range s.db.members {
		if m.ClanID == clanID {
			n++
		}
	}
	return n
}

func (s ClanStore) Search(_ context.Context, query string, limit, offset int) ([]*model.Clan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.Clan
	for _, c := range s.db.clans {
		if query == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPower > out[j].TotalPower })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s ClanStore) Members(_ context.Context, clanID string) ([]*model.ClanMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.ClanMember
	for _, m := range s.db.members {
		if m.ClanID == clanID {
			cp := *m
			if u, ok := s.db.users[m.UserID]; ok {
				cp.Username, cp.Level = u.Username, u.Level
			}
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s ClanStore) Membership(_ context.Context, userID int64) (*model.ClanMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[userID]
	if !ok {
		return nil, repository.ErrNotClanMember
	}
	cp := *m
	return &cp, nil
}

func (s ClanStore) Join(_ context.Context, clanID string, userID int64, maxMembers int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	c, ok := s.db.clans[clanID]
	if !ok {
		return repository.ErrClanNotFound
	}
	if _, ok := s.db.members[userID]; ok {
		return repository.ErrAlreadyInClan
	}
	if s.countMembers(clanID) >= maxMembers {
		return repository.ErrClanFull
	}
	if u.Level < c.MinLevel {
		return repository.ErrLevelTooLow
	}
	s.db.members[userID] = &model.ClanMember{ClanID: clanID, UserID: userID, Rank: model.RankMember}
	c.TotalPower += progression.MemberPower(u.Level)
	return nil
}

func (s ClanStore) Leave(_ context.Context, userID int64) (*repository.LeaveResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.members[userID]
	if !ok {
		return nil, repository.ErrNotClanMember
	}
	c := s.db.clans[m.ClanID]
	delete(s.db.members, userID)
	c.TotalPower = max(c.TotalPower-progression.MemberPower(s.db.users[userID].Level), 0)

	res := &repository.LeaveResult{ClanID: c.ID}
	if c.LeaderID != userID {
		return res, nil
	}
	var next *model.ClanMember
	for _, o := range s.db.members {
		if o.ClanID != c.ID {
			continue
		}
		if next == nil || o.Rank > next.Rank ||
			(o.Rank == next.Rank && s.db.users[o.UserID].Level > s.db.users[next.UserID].Level) {
			next = o
		}
	}
	if next == nil {
		delete(s.db.clans, c.ID)
		res.Dissolved = true
		return res, nil
	}
	next.Rank = model.RankLeader
	c.LeaderID = next.UserID
	res.NewLeaderID = next.UserID
	return res, nil
}

func (s ClanStore) pair(actorID, targetID int64) (*model.ClanMember, *model.ClanMember, error) {
	actor, ok := s.db.members[actorID]
	if !ok {
		return nil, nil, repository.ErrNotClanMember
	}
	target, ok := s.db.members[targetID]
	if !ok || target.ClanID != actor.ClanID {
		return nil, nil, repository.ErrDifferentClan
	}
	return actor, target, nil
}

func (s ClanStore) Kick(_ context.Context, actorID, targetID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	actor, target, err := s.pair(actorID, targetID)
	if err != nil {
		return err
	}
	if actor.Rank <= target.Rank {
		return repository.ErrRankTooLow
	}
	c := s.db.clans[actor.ClanID]
	delete(s.db.members, targetID)
	c.TotalPower = max(c.TotalPower-progression.MemberPower(s.db.users[targetID].Level), 0)
	return nil
}

func (s ClanStore) SetRank(_ context.Context, actorID, targetID int64, rank int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	actor, target, err := s.pair(actorID, targetID)
	if err != nil {
		return err
	}
	if actor.Rank != model.RankLeader {
		return repository.ErrRankTooLow
	}
	target.Rank = rank
	if rank == model.RankLeader {
		actor.Rank = model.RankOfficer
		s.db.clans[actor.ClanID].LeaderID = targetID
	}
	return nil
}

func (s ClanStore) RolloverEvent(_ context.Context, clanID string, prevStart *time.Time, start time.Time, eventType model.EventType) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.clans[clanID]
	if !ok {
		return false, repository.ErrClanNotFound
	}
	stored := c.WeeklyEvent.StartDate
	if prevStart == nil && !stored.IsZero() || prevStart != nil && !stored.Equal(*prevStart) {
		return false, nil
	}
	c.WeeklyEvent = model.WeeklyEvent{StartDate: start, Type: eventType}
	s.db.claims = slices.DeleteFunc(s.db.claims, func(cl model.EventClaim) bool {
		return cl.ClanID == clanID && !cl.PeriodStart.Equal(start)
	})
	return true, nil
}

func (s ClanStore) Claims(_ context.Context, clanID string, periodStart time.Time) ([]model.EventClaim, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []model.EventClaim{}
	for _, cl := range s.db.claims {
		if cl.ClanID == clanID && cl.PeriodStart.Equal(periodStart) {
			out = append(out, cl)
		}
	}
	return out, nil
}

func (s ClanStore) InsertClaim(_ context.Context, claim model.EventClaim) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.clans[claim.ClanID]
	if !ok || !c.WeeklyEvent.StartDate.Equal(claim.PeriodStart) {
		return repository.ErrPeriodMismatch
	}
	for _, cl := range s.db.claims {
		if cl.ClanID == claim.ClanID && cl.UserID == claim.UserID && cl.Tier == claim.Tier && cl.PeriodStart.Equal(claim.PeriodStart) {
			return repository.ErrClaimExists
		}
	}
	s.db.claims = append(s.db.claims, claim)
	return nil
}

func (s ClanStore) DeleteClaim(_ context.Context, claim model.EventClaim) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.claims = slices.DeleteFunc(s.db.claims, func(cl model.EventClaim) bool {
		return cl.ClanID == claim.ClanID && cl.UserID == claim.UserID && cl.Tier == claim.Tier && cl.PeriodStart.Equal(claim.PeriodStart)
	})
	return nil
}

// activity

type ActivityStore struct{ db *DB }

func (s ActivityStore) AddWorkoutSet(_ context.Context, set *model.WorkoutSet) (*model.WorkoutSet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *set
	cp.ID = int64(len(s.db.workouts) + 1)
	s.db.workouts = append(s.db.workouts, &cp)
	out := cp
	return &out, nil
}

func (s ActivityStore) Contributions(_ context.Context, clanID string, _ model.EventType, _ time.Time, _ string) (map[int64]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[int64]int64)
	for _, m := range s.db.members {
		if m.ClanID == clanID {
			out[m.UserID] = s.db.contributions[clanID][m.UserID]
		}
	}
	return out, nil
}

// event progress

type EventProgressStore struct{ db *DB }

func (s EventProgressStore) get(userID int64, periodID string) *model.UserEventProgress {
	key := logKey(userID, periodID)
	p, ok := s.db.progress[key]
	if !ok {
		p = &model.UserEventProgress{UserID: userID, PeriodID: periodID, ClaimedRewards: []int{}}
		s.db.progress[key] = p
	}
	return p
}

func (s EventProgressStore) AddPoints(_ context.Context, userID int64, periodID string, points int64) (*model.UserEventProgress, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.get(userID, periodID)
	p.Points += points
	cp := *p
	return &cp, nil
}

func (s EventProgressStore) Get(_ context.Context, userID int64, periodID string) (*model.UserEventProgress, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *s.get(userID, periodID)
	cp.ClaimedRewards = slices.Clone(cp.ClaimedRewards)
	return &cp, nil
}

func (s EventProgressStore) MarkClaimed(_ context.Context, userID int64, periodID string, milestone int, minPoints int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.get(userID, periodID)
	if p.Points < minPoints || slices.Contains(p.ClaimedRewards, milestone) {
		return false, nil
	}
	p.ClaimedRewards = append(p.ClaimedRewards, milestone)
	return true, nil
}

func (s EventProgressStore) UnmarkClaimed(_ context.Context, userID int64, periodID string, milestone int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p := s.get(userID, periodID)
	p.ClaimedRewards = slices.DeleteFunc(p.ClaimedRewards, func(v int) bool { return v == milestone })
	return nil
}

// maintenance runs

type RunStore struct{ db *DB }

func (s RunStore) Claim(_ context.Context, runDate string, startedAt time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if r, ok := s.db.runs[runDate]; ok && r.Status != model.RunStatusFailed {
		return false, nil
	}
	s.db.runs[runDate] = &model.MaintenanceRun{RunDate: runDate, Status: model.RunStatusRunning, StartedAt: startedAt}
	return true, nil
}

func (s RunStore) Finish(_ context.Context, run *model.MaintenanceRun) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.runs[run.RunDate]; !ok {
		return repository.ErrRunNotFound
	}
	cp := *run
	s.db.runs[run.RunDate] = &cp
	return nil
}

func (s RunStore) Get(_ context.Context, runDate string) (*model.MaintenanceRun, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.runs[runDate]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (s RunStore) Recent(_ context.Context, limit int) ([]*model.MaintenanceRun, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.MaintenanceRun
	for _, r := range s.db.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunDate > out[j].RunDate })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
