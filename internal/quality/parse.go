package quality

import (
	"regexp"
	"strconv"
	"strings"
)

// dimensionLine matches a whole self-assessment line such as "RELEVANCE: 82"
// or "technical - 75/100".
var dimensionLine = regexp.MustCompile(`(?i)^\s*[*\-]*\s*(confidence|completeness|relevance|consistency|creativity|technical)\s*[:=\-]\s*(\d{1,3}(?:\.\d+)?)(?:\s*/\s*100)?\s*$`)

// overallLine matches "QUALITY: 80" or "SCORE: 80/100".
var overallLine = regexp.MustCompile(`(?i)^\s*(?:quality|score|overall)\s*[:=]\s*(\d{1,3}(?:\.\d+)?)(?:\s*/\s*100)?\s*$`)

var assessmentHeader = regexp.MustCompile(`(?i)^[\s#*]*self[- ]?assessment\s*:?[\s*]*$`)

// splitAssessment separates the trailing self-assessment block from the body
// of the output. The block is the run of score lines, headers and blank lines
// at the end of the text; score-like lines above it belong to the body.
func splitAssessment(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	start := len(lines)
	scored := false
scan:
	for i := len(lines) - 1; i >= 0; i-- {
		l := lines[i]
		switch {
		case dimensionLine.MatchString(l), overallLine.MatchString(l):
			scored = true
		case strings.TrimSpace(l) == "", assessmentHeader.MatchString(l):
		default:
			break scan
		}
		start = i
	}
	if !scored {
		return text, nil
	}
	return strings.Join(lines[:start], "\n"), lines[start:]
}

// ParseDimensions extracts dimension scores from the trailing self-assessment
// block. Values outside 0-100 are dropped. Later lines win on duplicates.
func ParseDimensions(text string) map[Dimension]float64 {
	out := map[Dimension]float64{}
	_, block := splitAssessment(text)
	for _, l := range block {
		m := dimensionLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v < 0 || v > 100 {
			continue
		}
		out[Dimension(strings.ToLower(m[1]))] = v
	}
	return out
}

// ParseOverall extracts a single overall score, if the text ends with one.
func ParseOverall(text string) (float64, bool) {
	_, block := splitAssessment(text)
	for _, l := range block {
		m := overallLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v < 0 || v > 100 {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// StripAssessment removes the trailing self-assessment block so it does not
// leak into the delivered output.
func StripAssessment(text string) string {
	body, _ := splitAssessment(text)
	return strings.TrimSpace(body)
}
