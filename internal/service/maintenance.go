package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/metrics"
	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
)

// Maintenance triggers.
const (
	TriggerTimer    = "timer"
	TriggerStartup  = "startup"
	TriggerEndpoint = "endpoint"
	TriggerCLI      = "cli"
	TriggerBot      = "bot"
)

// penalty is the accumulated punishment of one user.
type penalty struct {
	damage    int
	snapshots []model.MissionSnapshot
}

// Maintenance is the nightly job: it punishes missed missions, then resets
// expired habits and deletes expired temporal missions. A persisted per-date
// guard makes it run at most once per calendar day across processes.
type Maintenance struct {
	missions ExpiryStore
	users    UserStore
	logs     DailyLogStore
	runs     RunStore
	clock    clock.Clock
}

// NewMaintenance creates the maintenance job.
func NewMaintenance(missions ExpiryStore, users UserStore, logs DailyLogStore, runs RunStore, clk clock.Clock) *Maintenance {
	return &Maintenance{missions: missions, users: users, logs: logs, runs: runs, clock: clk}
}

// Run executes the job for today. It returns ErrMaintenanceAlreadyRan when
// the date has already been processed or is being processed elsewhere.
func (m *Maintenance) Run(ctx context.Context, trigger string) (*model.MaintenanceRun, error) {
	now := m.clock.Now()
	today := progression.DateKey(now)
	yesterday := progression.DateKey(now.AddDate(0, 0, -1))

	logger := log.With().Str("run_date", today).Str("trigger", trigger).Logger()

	claimed, err := m.runs.Claim(ctx, today, now)
	if err != nil {
		return nil, translate(err, "claim maintenance run")
	}
	if !claimed {
		logger.Info().Msg("maintenance already ran, skipping")
		metrics.RecordMaintenanceRun(trigger, "skipped", 0)
		return nil, ErrMaintenanceAlreadyRan
	}

	run := &model.MaintenanceRun{RunDate: today, Status: model.RunStatusRunning, StartedAt: now}
	freqs := progression.ExpiringFrequencies(now)
	logger.Info().Strs("frequencies", frequencyNames(freqs)).Msg("maintenance started")

	punished, err := m.punish(ctx, freqs, yesterday)
	if err != nil {
		run.Status = model.RunStatusFailed
		m.finish(ctx, run, trigger)
		return run, translate(err, "punish missed missions")
	}
	run.PunishedUsers = punished

	// Cleanup destroys the completed/progress signal punishment reads, so it
	// always runs second.
	for _, f := range freqs {
		reset, err := m.missions.ResetHabits(ctx, f, now)
		if err != nil {
			logger.Error().Err(err).Str("frequency", string(f)).Msg("failed to reset habits")
		}
		run.HabitsReset += reset

		deleted, err := m.missions.DeleteTemporals(ctx, f)
		if err != nil {
			logger.Error().Err(err).Str("frequency", string(f)).Msg("failed to delete expired temporal missions")
		}
		run.TemporalsGone += deleted
	}

	run.Status = model.RunStatusDone
	m.finish(ctx, run, trigger)

	logger.Info().
		Int("punished_users", run.PunishedUsers).
		Int64("habits_reset", run.HabitsReset).
		Int64("temporals_deleted", run.TemporalsGone).
		Msg("maintenance finished")
	return run, nil
}

// punish damages every owner of an open expiring mission and records failure
// snapshots in the log of the day that just ended. Users are processed
// independently; one failing user does not stop the rest.
func (m *Maintenance) punish(ctx context.Context, freqs []model.Frequency, logDate string) (int, error) {
	open, err := m.missions.ListOpenByFrequencies(ctx, freqs)
	if err != nil {
		return 0, err
	}

	now := m.clock.Now()
	penalties := make(map[int64]*penalty)
	for _, mission := range open {
		p, ok := penalties[mission.UserID]
		if !ok {
			p = &penalty{}
			penalties[mission.UserID] = p
		}
		damage := progression.HPDamage(mission.Difficulty)
		p.damage += damage
		p.snapshots = append(p.snapshots, model.MissionSnapshot{
			Title:      mission.Title,
			Frequency:  mission.Frequency,
			Difficulty: mission.Difficulty,
			Kind:       mission.Kind,
			Failed:     true,
			HPLoss:     damage,
			At:         now,
		})
	}

	userIDs := make([]int64, 0, len(penalties))
	for id := range penalties {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	punished := 0
	for _, userID := range userIDs {
		if err := m.punishUser(ctx, userID, penalties[userID], logDate); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to punish user")
			continue
		}
		punished++
	}
	return punished, nil
}

func (m *Maintenance) punishUser(ctx context.Context, userID int64, p *penalty, logDate string) error {
	if p.damage > 0 {
		user, err := m.users.DamageHP(ctx, userID, p.damage)
		if err != nil {
			return fmt.Errorf("damage hp: %w", err)
		}
		metrics.RecordHPDamage(p.damage)
		log.Debug().Int64("user_id", userID).Int("damage", p.damage).Int("hp", user.HP).Msg("user punished")
	}

	entry := repository.LogEntry{Snapshots: p.snapshots, Lives: -int64(p.damage)}
	if err := m.logs.Append(ctx, userID, logDate, entry); err != nil {
		return fmt.Errorf("record failures: %w", err)
	}
	return nil
}

func (m *Maintenance) finish(ctx context.Context, run *model.MaintenanceRun, trigger string) {
	finished := m.clock.Now()
	run.FinishedAt = &finished

	// Record the outcome even if the caller's context was cancelled mid-run.
	if err := m.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Str("run_date", run.RunDate).Msg("failed to record maintenance outcome")
	}
	metrics.RecordMaintenanceRun(trigger, run.Status, finished.Sub(run.StartedAt))
}

// LastRuns returns recent maintenance runs, newest first.
func (m *Maintenance) LastRuns(ctx context.Context, limit int) ([]*model.MaintenanceRun, error) {
	runs, err := m.runs.Recent(ctx, limit)
	if err != nil {
		return nil, translate(err, "list maintenance runs")
	}
	return runs, nil
}

func frequencyNames(freqs []model.Frequency) []string {
	out := make([]string, len(freqs))
	for i, f := range freqs {
		out[i] = string(f)
	}
	return out
}
