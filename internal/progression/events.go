package progression

import (
	"fmt"
	"sort"
	"sync"

	"habit-quest/internal/model"
)

// EventDefinition describes one weekly clan event type.
type EventDefinition struct {
	Type        model.EventType
	Name        string
	Unit        string
	Description string
	Goal        int64 // clan-wide total that unlocks tier 3
}

// Registry maps event types to their definitions.
type Registry struct {
	events map[model.EventType]EventDefinition
	mu     sync.RWMutex
}

// NewRegistry creates an empty event registry.
func NewRegistry() *Registry {
	return &Registry{events: make(map[model.EventType]EventDefinition)}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def EventDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if def.Goal <= 0 {
		return fmt.Errorf("event %q: goal must be positive", def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[def.Type] = def
	return nil
}

// Get looks up a definition by type.
func (r *Registry) Get(t model.EventType) (EventDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.events[t]
	return def, ok
}

// Types returns the registered types in lexical order.
func (r *Registry) Types() []model.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.EventType, 0, len(r.events))
	for t := range r.events {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DefaultEvents holds the four rotating event types.
var DefaultEvents = func() *Registry {
	r := NewRegistry()
	for _, def := range []EventDefinition{
		{Type: model.EventVolume, Name: "Iron Week", Unit: "kg", Description: "Lift weight × reps as a clan", Goal: 50000},
		{Type: model.EventMissions, Name: "Mission Rush", Unit: "missions", Description: "Complete missions as a clan", Goal: 300},
		{Type: model.EventCalories, Name: "Fuel Up", Unit: "kcal", Description: "Log calories as a clan", Goal: 20000},
		{Type: model.EventXP, Name: "XP Surge", Unit: "xp", Description: "Earn experience as a clan", Goal: 5000},
	} {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}()

// Tier is one reward rank of a weekly event.
type Tier struct {
	Level    int
	PerMille int64 // fraction of the goal, in thousandths
	Reward   model.Rewards
}

// Target is the clan total needed to claim this tier.
func (t Tier) Target(goal int64) int64 {
	return goal * t.PerMille / 1000
}

var tiers = [...]Tier{
	{Level: 1, PerMille: 100, Reward: model.Rewards{XP: 50, Coins: 25, GameCoins: 0}},
	{Level: 2, PerMille: 500, Reward: model.Rewards{XP: 150, Coins: 75, GameCoins: 1}},
	{Level: 3, PerMille: 1000, Reward: model.Rewards{XP: 300, Coins: 150, GameCoins: 3}},
	{Level: 4, PerMille: 1500, Reward: model.Rewards{XP: 500, Coins: 250, GameCoins: 5}},
	{Level: 5, PerMille: 2000, Reward: model.Rewards{XP: 800, Coins: 400, GameCoins: 10}},
}

// TierFor returns the tier with the given level (1..5).
func TierFor(level int) (Tier, bool) {
	if level < 1 || level > len(tiers) {
		return Tier{}, false
	}
	return tiers[level-1], true
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers[:])
	return out
}

// Milestone is a reward step on the per-user event-progress track.
type Milestone struct {
	Points int64
	Reward model.Rewards
}

var milestones = [...]Milestone{
	{Points: 10, Reward: model.Rewards{XP: 30, Coins: 15}},
	{Points: 30, Reward: model.Rewards{XP: 80, Coins: 40, GameCoins: 1}},
	{Points: 60, Reward: model.Rewards{XP: 150, Coins: 80, GameCoins: 3}},
}

// MilestoneFor returns the milestone with the given point threshold.
func MilestoneFor(points int64) (Milestone, bool) {
	for _, m := range milestones {
		if m.Points == points {
			return m, true
		}
	}
	return Milestone{}, false
}

// Milestones returns all milestones in ascending order.
func Milestones() []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones[:])
	return out
}
