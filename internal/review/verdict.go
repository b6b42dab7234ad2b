// Package review drives the iterative code-review loop: run a review prompt
// through the agent, interpret the free-form output into a structured
// Verdict, and optionally dispatch auto-fix calls until the verdict is clean
// or the iteration budget runs out.
package review

// Type distinguishes what a review targets.
type Type string

const (
	// TypeMilestone reviews a single milestone inside its worktree.
	TypeMilestone Type = "milestone"
	// TypeStage reviews the merged base branch after a stage completes.
	TypeStage Type = "stage"
)

// String returns the string representation of the review type.
func (t Type) String() string {
	return string(t)
}

// Outcome is the terminal state of a review loop.
type Outcome string

const (
	// OutcomePassed means the final verdict was clean.
	OutcomePassed Outcome = "passed"
	// OutcomeIssuesRemain means issues were found and auto-fix is disabled.
	OutcomeIssuesRemain Outcome = "issues_remain"
	// OutcomeAutoFixFailed means a corrective agent call did not succeed.
	OutcomeAutoFixFailed Outcome = "auto_fix_failed"
	// OutcomeExhausted means every iteration found issues and every fix
	// call succeeded, yet the budget ran out before a clean verdict.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeExecutionFailed means a review invocation itself failed.
	OutcomeExecutionFailed Outcome = "execution_failed"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Verdict is the structured interpretation of one review's output.
type Verdict struct {
	// QualityScore is the reviewer's 0.0-1.0 assessment. When output
	// carries no parseable score, interpreters default it to 0.8.
	QualityScore float64 `json:"quality_score"`

	// Todos lists TODO/FIXME/XXX items the reviewer flagged.
	Todos []string `json:"todos,omitempty"`

	// FailedGates lists quality gates the reviewer marked as failed.
	FailedGates []string `json:"failed_gates,omitempty"`

	// Recommendations lists suggested improvements, used to build
	// auto-fix prompts.
	Recommendations []string `json:"recommendations,omitempty"`
}

// HasIssues reports whether anything in the verdict needs attention:
// outstanding todos, failed gates, or a score below threshold.
func (v Verdict) HasIssues(threshold float64) bool {
	return len(v.Todos) > 0 || len(v.FailedGates) > 0 || v.QualityScore < threshold
}

// GatePassed reports whether the verdict clears the quality gate: score at
// or above threshold and no failed gates. Todos alone do not fail the gate.
func (v Verdict) GatePassed(threshold float64) bool {
	return v.QualityScore >= threshold && len(v.FailedGates) == 0
}

// Clone returns a deep copy of the verdict.
func (v Verdict) Clone() Verdict {
	out := v
	out.Todos = append([]string(nil), v.Todos...)
	out.FailedGates = append([]string(nil), v.FailedGates...)
	out.Recommendations = append([]string(nil), v.Recommendations...)
	return out
}

// Result is the outcome of a full review loop.
type Result struct {
	// Outcome is the terminal state the loop reached.
	Outcome Outcome `json:"outcome"`

	// Verdict is the final interpreted verdict. For OutcomeExhausted it is
	// synthesized, since the last fix call invalidated the last parse.
	Verdict Verdict `json:"verdict"`

	// ReportFile is the markdown report the reviewer was asked to write.
	ReportFile string `json:"report_file,omitempty"`

	// Iterations counts completed review iterations.
	Iterations int `json:"iterations"`
}

// Clone returns a deep copy of the result.
func (r Result) Clone() Result {
	out := r
	out.Verdict = r.Verdict.Clone()
	return out
}

// QualityFailure reports whether this review should fail its target. A
// passed outcome never fails; any other outcome fails when the final
// verdict did not clear the quality gate.
func (r Result) QualityFailure(threshold float64) bool {
	if r.Outcome == OutcomePassed {
		return false
	}
	return !r.Verdict.GatePassed(threshold)
}
