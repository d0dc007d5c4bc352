package analytics

import "strings"

// Error pattern names.
const (
	PatternTimeout        = "Timeout"
	PatternRateLimit      = "Rate Limit"
	PatternNetwork        = "Network"
	PatternTokenLimit     = "Token Limit"
	PatternAuthentication = "Authentication"
	PatternOther          = "Other Error"
)

var errorPatterns = []struct {
	name     string
	keywords []string
}{
	{PatternTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{PatternRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{PatternNetwork, []string{"network", "connection", "econnrefused", "no such host", "dns"}},
	{PatternTokenLimit, []string{"token"}},
	{PatternAuthentication, []string{"authentication", "unauthorized", "forbidden", "api key", "401", "403"}},
}

// ClassifyError maps an error message to a named pattern by keyword. The
// first matching pattern wins.
func ClassifyError(message string) string {
	lower := strings.ToLower(message)
	for _, p := range errorPatterns {
		for _, k := range p.keywords {
			if strings.Contains(lower, k) {
				return p.name
			}
		}
	}
	return PatternOther
}
