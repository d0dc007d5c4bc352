package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigade/internal/models"
	"brigade/internal/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	db, err := Open(Options{DSN: filepath.Join(t.TempDir(), "brigade.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "data.db?_journal_mode=WAL&_busy_timeout=5000", sqliteDSN("data.db"))
	assert.Contains(t, sqliteDSN(":memory:"), ":memory:")
	assert.Equal(t, "x.db?_foreign_keys=on", sqliteDSN("x.db?_foreign_keys=on"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestSeedDefaultsOnce(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	seeded, err := SeedDefaults(ctx, s)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = SeedDefaults(ctx, s)
	require.NoError(t, err)
	assert.False(t, seeded)

	depts, err := s.Departments.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, depts, 3)

	heads, err := s.Agents.FindActive(ctx, models.AgentFilter{DepartmentID: "engineering", IsDepartmentHead: models.Bool(true)}, "")
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "engineering-head", heads[0].ID)
}

func TestDefaultRosterIsValid(t *testing.T) {
	assert.NoError(t, DefaultRoster().Validate())
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
departments:
  - id: legal
    slug: legal
    name: Legal
    keywords: [contract, policy]
    min_quality_threshold: 75
    active: true
agents:
  - id: counsel
    name: Counsel
    level: department-head
    department: legal
    head: true
    active: true
    capabilities: [synthesis]
  - id: reviewer
    level: specialist
    department: legal
    active: true
    passing_threshold: 0
    max_retries: 0
    capabilities: [editing]
`), 0o644))

	r, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, r.Departments, 1)
	assert.Equal(t, models.StringSlice{"contract", "policy"}, r.Departments[0].Keywords)
	require.Len(t, r.Agents, 2)
	assert.True(t, r.Agents[0].IsDepartmentHead)
	require.NotNil(t, r.Agents[1].PassingThreshold)
	assert.Zero(t, *r.Agents[1].PassingThreshold)
	assert.Nil(t, r.Agents[0].PassingThreshold)
	require.NotNil(t, r.Agents[1].MaxRetries)
	assert.Zero(t, *r.Agents[1].MaxRetries)
	assert.Nil(t, r.Agents[0].MaxRetries)

	s := openTemp(t)
	require.NoError(t, Seed(context.Background(), s, r))
	a, err := s.Agents.Get(context.Background(), "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.StringSlice{"editing"}, a.Capabilities)
	require.NotNil(t, a.MaxRetries, "explicit zero retries survive storage")
	assert.Zero(t, *a.MaxRetries)
}

func TestRosterValidation(t *testing.T) {
	cases := map[string]Roster{
		"unknown department": {Agents: []models.Agent{{ID: "a", Level: models.LevelSpecialist, DepartmentID: "x"}}},
		"bad level":          {Agents: []models.Agent{{ID: "a", Level: "chef"}}},
		"duplicate agent": {Agents: []models.Agent{
			{ID: "m", Level: models.LevelMaster},
			{ID: "m", Level: models.LevelMaster},
		}},
		"two heads": {
			Departments: []models.Department{{ID: "d", Slug: "d"}},
			Agents: []models.Agent{
				{ID: "h1", Level: models.LevelDepartmentHead, DepartmentID: "d", IsDepartmentHead: true},
				{ID: "h2", Level: models.LevelDepartmentHead, DepartmentID: "d", IsDepartmentHead: true},
			},
		},
		"threshold range": {Agents: []models.Agent{{ID: "m", Level: models.LevelMaster, PassingThreshold: models.Float(120)}}},
		"negative retries": {Agents: []models.Agent{{ID: "m", Level: models.LevelMaster, MaxRetries: models.Int(-1)}}},
	}
	for name, r := range cases {
		r := r
		t.Run(name, func(t *testing.T) {
			assert.Error(t, r.Validate())
		})
	}
}
