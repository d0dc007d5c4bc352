package database

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"brigade/internal/models"
	"brigade/internal/store"
)

// Roster is the declarative set of departments and agents loaded at seed time.
type Roster struct {
	Departments []models.Department `yaml:"departments"`
	Agents      []models.Agent      `yaml:"agents"`
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks references between agents and departments.
func (r *Roster) Validate() error {
	depts := map[string]bool{}
	for _, d := range r.Departments {
		if d.ID == "" || d.Slug == "" {
			return fmt.Errorf("department %q needs an id and a slug", d.Name)
		}
		if depts[d.ID] {
			return fmt.Errorf("duplicate department %s", d.ID)
		}
		depts[d.ID] = true
	}

	seen := map[string]bool{}
	heads := map[string]int{}
	for _, a := range r.Agents {
		switch {
		case a.ID == "":
			return fmt.Errorf("agent %q needs an id", a.Name)
		case seen[a.ID]:
			return fmt.Errorf("duplicate agent %s", a.ID)
		case !a.Level.Valid():
			return fmt.Errorf("agent %s has unknown level %q", a.ID, a.Level)
		case a.Level != models.LevelMaster && !depts[a.DepartmentID]:
			return fmt.Errorf("agent %s references unknown department %q", a.ID, a.DepartmentID)
		case a.PassingThreshold != nil && (*a.PassingThreshold < 0 || *a.PassingThreshold > 100):
			return fmt.Errorf("agent %s passing threshold must be within 0-100", a.ID)
		case a.MaxRetries != nil && *a.MaxRetries < 0:
			return fmt.Errorf("agent %s max retries must not be negative", a.ID)
		}
		seen[a.ID] = true
		if a.IsDepartmentHead {
			heads[a.DepartmentID]++
		}
	}
	for id, n := range heads {
		if n > 1 {
			return fmt.Errorf("department %s has %d heads", id, n)
		}
	}
	return nil
}

// Seed upserts every department and agent of r. Existing performance
// aggregates are kept.
func Seed(ctx context.Context, s *store.Store, r *Roster) error {
	for i := range r.Departments {
		if err := s.Departments.Upsert(ctx, &r.Departments[i]); err != nil {
			return err
		}
	}
	for i := range r.Agents {
		if err := s.Agents.Upsert(ctx, &r.Agents[i]); err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaults seeds DefaultRoster when no department exists yet.
func SeedDefaults(ctx context.Context, s *store.Store) (bool, error) {
	var count int
	if err := s.DB.Model(&models.Department{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting departments: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	return true, Seed(ctx, s, DefaultRoster())
}

// DefaultRoster is a small working brigade: a master router and three
// departments, each with a head and two specialists.
func DefaultRoster() *Roster {
	dept := func(id, name string, min float64, keywords ...string) models.Department {
		return models.Department{
			ID:                  id,
			Slug:                id,
			Name:                name,
			Keywords:            keywords,
			MinQualityThreshold: models.Float(min),
			MaxSpecialists:      4,
			Active:              true,
		}
	}
	agent := func(id, deptID string, level models.AgentLevel, spec string, caps ...string) models.Agent {
		return models.Agent{
			ID:               id,
			Name:             id,
			Level:            level,
			DepartmentID:     deptID,
			IsDepartmentHead: level == models.LevelDepartmentHead,
			Active:           true,
			Capabilities:     caps,
			Specialization:   spec,
			MaxRetries:       models.Int(3),
			TokenBudget:      2048,
			Temperature:      0.7,
		}
	}

	return &Roster{
		Departments: []models.Department{
			dept("creative", "Creative", 65, "story", "character", "dialogue", "plot", "scene", "write"),
			dept("engineering", "Engineering", 70, "code", "api", "bug", "implement", "service", "test"),
			dept("research", "Research", 70, "research", "analyze", "compare", "study", "source"),
		},
		Agents: []models.Agent{
			agent("master", "", models.LevelMaster, "routing", "routing"),
			agent("creative-head", "creative", models.LevelDepartmentHead, "editing", "synthesis", "editing"),
			agent("dialogue-writer", "creative", models.LevelSpecialist, "dialogue", "writing", "dialogue"),
			agent("plot-architect", "creative", models.LevelSpecialist, "plot", "writing", "plot"),
			agent("engineering-head", "engineering", models.LevelDepartmentHead, "code", "synthesis", "code"),
			agent("backend-engineer", "engineering", models.LevelSpecialist, "code", "code"),
			agent("test-engineer", "engineering", models.LevelSpecialist, "testing", "code", "testing"),
			agent("research-head", "research", models.LevelDepartmentHead, "research", "synthesis", "research"),
			agent("analyst", "research", models.LevelSpecialist, "research", "research"),
			agent("fact-checker", "research", models.LevelSpecialist, "editing", "research", "editing"),
		},
	}
}
