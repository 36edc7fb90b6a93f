package bot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/castlegate/chess-arena/internal/domain"
)

// ProfileSet is the catalog of selectable bot opponents, ordered
// weakest to strongest.
type ProfileSet struct {
	byID  map[string]domain.BotProfile
	order []string
}

func NewProfileSet(profiles []domain.BotProfile) (*ProfileSet, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no bot profiles")
	}
	set := &ProfileSet{byID: make(map[string]domain.BotProfile, len(profiles))}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("bot profile missing id")
		}
		if p.SkillLevel < 0 || p.SkillLevel > 20 {
			return nil, fmt.Errorf("bot %s: skill level %d out of range", p.ID, p.SkillLevel)
		}
		if _, dup := set.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate bot profile %s", p.ID)
		}
		set.byID[p.ID] = p
		set.order = append(set.order, p.ID)
	}
	return set, nil
}

// DefaultProfiles returns the built-in ladder of six opponents.
func DefaultProfiles() *ProfileSet {
	set, err := NewProfileSet([]domain.BotProfile{
		{ID: "rookie", Name: "Rookie", Difficulty: "beginner", EloMin: 400, EloMax: 800, SkillLevel: 2, ThinkTime: 500 * time.Millisecond},
		{ID: "amateur", Name: "Amateur", Difficulty: "casual", EloMin: 800, EloMax: 1100, SkillLevel: 5, ThinkTime: 800 * time.Millisecond},
		{ID: "clubplayer", Name: "Club Player", Difficulty: "intermediate", EloMin: 1100, EloMax: 1400, SkillLevel: 10, ThinkTime: 1200 * time.Millisecond},
		{ID: "advanced", Name: "Advanced", Difficulty: "advanced", EloMin: 1400, EloMax: 1700, SkillLevel: 15, ThinkTime: 1500 * time.Millisecond},
		{ID: "expert", Name: "Expert", Difficulty: "expert", EloMin: 1700, EloMax: 2100, SkillLevel: 18, ThinkTime: 2000 * time.Millisecond},
		{ID: "grandmaster", Name: "Grandmaster", Difficulty: "master", EloMin: 2100, EloMax: 2500, SkillLevel: 20, ThinkTime: 2500 * time.Millisecond},
	})
	if err != nil {
		panic(err)
	}
	return set
}

type profileFile struct {
	Bots []profileEntry `yaml:"bots"`
}

type profileEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Difficulty  string `yaml:"difficulty"`
	EloMin      int    `yaml:"elo_min"`
	EloMax      int    `yaml:"elo_max"`
	SkillLevel  int    `yaml:"skill_level"`
	ThinkTimeMS int    `yaml:"think_time_ms"`
}

// LoadProfiles reads a full replacement catalog from a YAML file.
func LoadProfiles(path string) (*ProfileSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot profiles: %w", err)
	}
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse bot profiles: %w", err)
	}
	profiles := make([]domain.BotProfile, 0, len(file.Bots))
	for _, e := range file.Bots {
		profiles = append(profiles, domain.BotProfile{
			ID:         e.ID,
			Name:       e.Name,
			Difficulty: e.Difficulty,
			EloMin:     e.EloMin,
			EloMax:     e.EloMax,
			SkillLevel: e.SkillLevel,
			ThinkTime:  time.Duration(e.ThinkTimeMS) * time.Millisecond,
		})
	}
	return NewProfileSet(profiles)
}

func (s *ProfileSet) Get(id string) (domain.BotProfile, bool) {
	p, ok := s.byID[id]
	return p, ok
}

func (s *ProfileSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// All lists the profiles in catalog order.
func (s *ProfileSet) All() []domain.BotProfile {
	out := make([]domain.BotProfile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
