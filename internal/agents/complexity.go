package agents

import (
	"sort"
	"strings"
	"unicode"
)

// Complexity classifies how much delegation a prompt needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// SpecialistCount maps a classification to the number of specialists to engage.
func (c Complexity) SpecialistCount() int {
	switch c {
	case ComplexityComplex:
		return 4
	case ComplexityModerate:
		return 2
	}
	return 1
}

// Analysis is the outcome of complexity analysis.
type Analysis struct {
	Complexity           Complexity `json:"complexity"`
	WordCount            int        `json:"word_count"`
	MultiPartSignals     int        `json:"multi_part_signals"`
	DepthSignals         int        `json:"depth_signals"`
	EstimatedSpecialists int        `json:"estimated_specialists"`
	Skills               []string   `json:"skills,omitempty"`
}

// ComplexityAnalyzer classifies prompts.
type ComplexityAnalyzer interface {
	Analyze(prompt string) Analysis
}

var (
	multiPartWords   = []string{"and", "also", "additionally", "furthermore", "plus", "then"}
	multiPartPhrases = []string{"as well as"}
	depthWords       = []string{"complex", "detailed", "comprehensive", "in-depth", "thorough", "elaborate"}
)

// DefaultSkillKeywords maps skill tags to the words that imply them.
func DefaultSkillKeywords() map[string][]string {
	return map[string][]string{
		"dialogue":              {"dialogue", "dialog", "conversation", "conversations"},
		"character-development": {"character", "characters", "personality", "backstory"},
		"plot":                  {"plot", "story", "narrative", "storyline"},
		"worldbuilding":         {"world", "setting", "lore", "worldbuilding"},
		"code":                  {"code", "implement", "function", "api", "bug", "refactor"},
		"testing":               {"test", "tests", "testing", "coverage"},
		"research":              {"research", "analyze", "analysis", "data", "study"},
		"design":                {"design", "layout", "ui", "ux", "visual"},
		"marketing":             {"marketing", "campaign", "audience", "brand"},
		"editing":               {"edit", "proofread", "revise", "grammar"},
	}
}

// KeywordAnalyzer is the default word-count and keyword heuristic.
type KeywordAnalyzer struct {
	skills map[string][]string
}

// NewKeywordAnalyzer creates an analyzer. A nil skill table uses DefaultSkillKeywords.
func NewKeywordAnalyzer(skills map[string][]string) *KeywordAnalyzer {
	if skills == nil {
		skills = DefaultSkillKeywords()
	}
	return &KeywordAnalyzer{skills: skills}
}

// Analyze classifies the prompt.
//
//	complex:  more than 100 words, depth plus multi-part signals, or 3+ multi-part signals
//	simple:   fewer than 20 words and no signals
//	moderate: everything else
func (a *KeywordAnalyzer) Analyze(prompt string) Analysis {
	lower := strings.ToLower(prompt)
	words := tokenize(lower)
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}

	an := Analysis{WordCount: len(words)}
	for _, w := range multiPartWords {
		an.MultiPartSignals += counts[w]
	}
	for _, p := range multiPartPhrases {
		an.MultiPartSignals += strings.Count(lower, p)
	}
	for _, w := range depthWords {
		if counts[w] > 0 {
			an.DepthSignals++
		}
	}

	switch {
	case an.WordCount > 100,
		an.DepthSignals > 0 && an.MultiPartSignals > 0,
		an.MultiPartSignals >= 3:
		an.Complexity = ComplexityComplex
	case an.WordCount < 20 && an.DepthSignals == 0 && an.MultiPartSignals == 0:
		an.Complexity = ComplexitySimple
	default:
		an.Complexity = ComplexityModerate
	}
	an.EstimatedSpecialists = an.Complexity.SpecialistCount()

	for skill, keywords := range a.skills {
		for _, k := range keywords {
			if counts[k] > 0 {
				an.Skills = append(an.Skills, skill)
				break
			}
		}
	}
	sort.Strings(an.Skills)
	return an
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
