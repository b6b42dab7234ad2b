package executor

import "strings"

// Print-mode agents exit zero even when they merely apologized, so a clean
// exit code is not enough. The output heuristic looks for explicit markers
// first and falls back to "said anything at all".
var successIndicators = []string{
	"Task completed successfully",
	"Implementation complete",
	"All tests passing",
	"[SUCCESS]",
	"Success",
}

var errorIndicators = []string{
	"Error:",
	"Failed:",
	"Exception:",
	"[ERROR]",
	"FAILED",
}

// JudgeOutput decides whether a zero-exit agent invocation actually
// succeeded. Explicit success indicators win unless error indicators are
// also present; explicit errors without success fail; otherwise any
// non-empty output passes.
func JudgeOutput(stdout string) bool {
	hasSuccess := containsAny(stdout, successIndicators)
	hasErrors := containsAny(stdout, errorIndicators)

	switch {
	case hasSuccess && !hasErrors:
		return true
	case hasErrors && !hasSuccess:
		return false
	default:
		return strings.TrimSpace(stdout) != ""
	}
}

func containsAny(s string, indicators []string) bool {
	for _, indicator := range indicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

// mentionsRateLimit reports whether agent output complains about rate
// limiting, so the limiter can shrink its budget.
func mentionsRateLimit(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}
