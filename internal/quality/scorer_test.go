package quality

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultProfilesSumToOne(t *testing.T) {
	for name, w := range DefaultProfiles() {
		assert.NoError(t, w.Validate(), name)
		assert.InDelta(t, 1.0, w.Sum(), WeightTolerance, name)
	}
}

func TestScoreUsesDepartmentProfile(t *testing.T) {
	s := NewScorer(quietLogger())

	dims := map[Dimension]float64{Technical: 100, Creativity: 0}
	// engineering: technical 0.30, creativity 0.05
	assert.InDelta(t, 100*0.30/0.35, s.Score(dims, "engineering"), 1e-9)
	// lookup is case-insensitive
	assert.InDelta(t, s.Score(dims, "engineering"), s.Score(dims, "ENGINEERING"), 1e-9)
}

func TestScoreFallsBackToBalanced(t *testing.T) {
	s := NewScorer(quietLogger())

	dims := map[Dimension]float64{Relevance: 80, Consistency: 60}
	// balanced: relevance 0.20, consistency 0.15
	want := (80*0.20 + 60*0.15) / 0.35
	assert.InDelta(t, want, s.Score(dims, "no-such-department"), 1e-9)
}

func TestScorePartialAndEmpty(t *testing.T) {
	s := NewScorer(quietLogger())

	assert.Equal(t, 0.0, s.Score(nil, "research"))
	assert.Equal(t, 0.0, s.Score(map[Dimension]float64{"humor": 90}, "research"))
	assert.InDelta(t, 72.0, s.Score(map[Dimension]float64{Completeness: 72}, "research"), 1e-9)
}

func TestScoreClampsValues(t *testing.T) {
	s := NewScorer(quietLogger())
	assert.InDelta(t, 100.0, s.Score(map[Dimension]float64{Relevance: 140}, "balanced"), 1e-9)
	assert.InDelta(t, 0.0, s.Score(map[Dimension]float64{Relevance: math.NaN()}, "balanced"), 1e-9)
}

func TestLoadProfilesRejectsInvalid(t *testing.T) {
	s := NewScorer(quietLogger())

	rejected := s.LoadProfiles(map[string]Weights{
		"Creative": {Creativity: 0.5, Relevance: 0.5},
		"broken":   {Creativity: 0.9, Relevance: 0.5},
		"negative": {Creativity: 1.2, Relevance: -0.2},
	})
	require.Len(t, rejected, 2)

	w, ok := s.Profile("broken")
	assert.True(t, ok)
	assert.Equal(t, DefaultProfiles()[FallbackProfile], w)

	w, ok = s.Profile("creative")
	assert.True(t, ok)
	assert.Equal(t, 0.5, w[Creativity])

	_, ok = s.Profile("engineering")
	assert.False(t, ok, "profiles are replaced, not merged")
}

func TestValidateTolerance(t *testing.T) {
	assert.NoError(t, Weights{Relevance: 0.505, Technical: 0.5}.Validate())
	assert.Error(t, Weights{Relevance: 0.52, Technical: 0.5}.Validate())
	assert.ErrorIs(t, Weights{}.Validate(), ErrEmptyProfile)
	assert.ErrorIs(t, Weights{"tone": 1}.Validate(), ErrUnknownDimension)
}

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles([]byte(`
profiles:
  research:
    relevance: 0.5
    completeness: 0.5
`))
	require.NoError(t, err)
	assert.Equal(t, Weights{Relevance: 0.5, Completeness: 0.5}, profiles["research"])

	_, err = ParseProfiles([]byte("profiles: [oops"))
	assert.Error(t, err)
}

func TestWatchReloadsProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  ops:\n    technical: 1.0\n"), 0o644))

	s := NewScorer(quietLogger())
	require.NoError(t, s.LoadFile(path))
	_, ok := s.Profile("ops")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  support:\n    relevance: 1.0\n"), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := s.Profile("support")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestParseDimensions(t *testing.T) {
	out := `Here is the chapter.

SELF-ASSESSMENT
CONFIDENCE: 80
- Relevance: 91/100
technical = 70
creativity: 140
`
	dims := ParseDimensions(out)
	assert.Equal(t, map[Dimension]float64{Confidence: 80, Relevance: 91, Technical: 70}, dims)

	score, ok := ParseOverall("notes\nSCORE: 77/100")
	assert.True(t, ok)
	assert.Equal(t, 77.0, score)

	_, ok = ParseOverall("no score here")
	assert.False(t, ok)
}

func TestAssessmentIsOnlyTheTrailingBlock(t *testing.T) {
	out := "Plan:\nTechnical: 3 services need a rewrite\nRelevance - 2 stakeholders\n\nCONFIDENCE: 90\n"

	assert.Equal(t, map[Dimension]float64{Confidence: 90}, ParseDimensions(out))
	assert.Equal(t, "Plan:\nTechnical: 3 services need a rewrite\nRelevance - 2 stakeholders", StripAssessment(out))

	// a score line in the middle of the body is content
	body := "Score: 40\nthat was last quarter's number"
	_, ok := ParseOverall(body)
	assert.False(t, ok)
	assert.Equal(t, body, StripAssessment(body))
	assert.Empty(t, ParseDimensions("Technical: 80 percent of the work is done"))
}
