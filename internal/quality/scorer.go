// Package quality converts per-dimension scores into a single weighted
// quality number using department-specific weight profiles.
package quality

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
)

// Dimension is one axis of output quality.
type Dimension string

const (
	Confidence   Dimension = "confidence"
	Completeness Dimension = "completeness"
	Relevance    Dimension = "relevance"
	Consistency  Dimension = "consistency"
	Creativity   Dimension = "creativity"
	Technical    Dimension = "technical"
)

// Dimensions lists every recognized dimension.
var Dimensions = []Dimension{Confidence, Completeness, Relevance, Consistency, Creativity, Technical}

// Known reports whether d is a recognized dimension.
func (d Dimension) Known() bool {
	for _, k := range Dimensions {
		if d == k {
			return true
		}
	}
	return false
}

// WeightTolerance is how far a profile's weights may drift from 1.0.
const WeightTolerance = 0.01

// FallbackProfile names the balanced profile used for unknown departments.
const FallbackProfile = "balanced"

var (
	ErrEmptyProfile     = errors.New("weight profile is empty")
	ErrUnknownDimension = errors.New("unknown quality dimension")
	ErrNegativeWeight   = errors.New("negative weight")
)

// Weights maps each dimension to its share of the final score.
type Weights map[Dimension]float64

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Validate checks the profile sums to 1.0 within WeightTolerance.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return ErrEmptyProfile
	}
	for d, v := range w {
		if !d.Known() {
			return fmt.Errorf("%w: %q", ErrUnknownDimension, d)
		}
		if v < 0 {
			return fmt.Errorf("%w for %s: %.3f", ErrNegativeWeight, d, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("weights sum to %.3f, want 1.0", sum)
	}
	return nil
}

// DefaultProfiles returns the built-in weight profiles keyed by department slug.
func DefaultProfiles() map[string]Weights {
	return map[string]Weights{
		FallbackProfile: {
			Confidence: 0.15, Completeness: 0.20, Relevance: 0.20,
			Consistency: 0.15, Creativity: 0.15, Technical: 0.15,
		},
		"creative": {
			Confidence: 0.10, Completeness: 0.15, Relevance: 0.20,
			Consistency: 0.15, Creativity: 0.30, Technical: 0.10,
		},
		"engineering": {
			Confidence: 0.15, Completeness: 0.20, Relevance: 0.15,
			Consistency: 0.15, Creativity: 0.05, Technical: 0.30,
		},
		"research": {
			Confidence: 0.20, Completeness: 0.25, Relevance: 0.25,
			Consistency: 0.15, Creativity: 0.05, Technical: 0.10,
		},
		"marketing": {
			Confidence: 0.10, Completeness: 0.15, Relevance: 0.25,
			Consistency: 0.15, Creativity: 0.25, Technical: 0.10,
		},
		"design": {
			Confidence: 0.10, Completeness: 0.15, Relevance: 0.20,
			Consistency: 0.15, Creativity: 0.25, Technical: 0.15,
		},
	}
}

// Scorer computes weighted quality scores. It is safe for concurrent use;
// profiles may be swapped at runtime by LoadProfiles or Watch.
type Scorer struct {
	mu       sync.RWMutex
	profiles map[string]Weights
	fallback Weights
	logger   *slog.Logger
}

// NewScorer creates a scorer seeded with DefaultProfiles.
func NewScorer(logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scorer{logger: logger}
	defaults := DefaultProfiles()
	s.fallback = defaults[FallbackProfile]
	s.profiles = make(map[string]Weights, len(defaults))
	for name, w := range defaults {
		s.profiles[strings.ToLower(name)] = w
	}
	return s
}

// LoadProfiles replaces the scorer's profiles. Invalid profiles are rejected
// with a warning and the balanced fallback is installed under their name.
// The returned slice lists one error per rejected profile.
func (s *Scorer) LoadProfiles(profiles map[string]Weights) []error {
	var rejected []error
	next := make(map[string]Weights, len(profiles)+1)

	fallback := DefaultProfiles()[FallbackProfile]
	if fw, ok := profiles[FallbackProfile]; ok {
		if err := fw.Validate(); err == nil {
			fallback = fw
		}
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := profiles[name]
		if err := w.Validate(); err != nil {
			s.logger.Warn("rejecting weight profile, using balanced fallback", "profile", name, "error", err)
			rejected = append(rejected, fmt.Errorf("profile %q: %w", name, err))
			next[strings.ToLower(name)] = fallback
			continue
		}
		next[strings.ToLower(name)] = w
	}
	next[FallbackProfile] = fallback

	s.mu.Lock()
	s.profiles = next
	s.fallback = fallback
	s.mu.Unlock()
	return rejected
}

// Profile returns the weights used for a department and whether a dedicated
// profile exists.
func (s *Scorer) Profile(departmentID string) (Weights, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.profiles[strings.ToLower(strings.TrimSpace(departmentID))]; ok {
		return w, true
	}
	return s.fallback, false
}

// Score combines dimension values (0-100) into one number using the
// department's profile. Dimensions absent from the input are excluded from
// both the weighted sum and the weight total. Returns 0 when no recognized
// dimension is present.
func (s *Scorer) Score(dimensions map[Dimension]float64, departmentID string) float64 {
	weights, ok := s.Profile(departmentID)
	if !ok {
		s.logger.Warn("no weight profile for department, using balanced fallback", "department", departmentID)
	}

	var weighted, total float64
	for d, v := range dimensions {
		w, known := weights[d]
		if !known {
			continue
		}
		weighted += clamp(v) * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
