package review

// Result is the outcome of handling a hook event. Exactly one of Allowed,
// Blocked and Inconclusive. Only Blocked stops the agent; an Inconclusive
// result fails open.
type Result interface {
	// Allows reports whether the agent may finish.
	Allows() bool

	// Reason is the human readable explanation of the result. For a block
	// it is the feedback handed back to the agent.
	Reason() string

	// String returns the result kind: passed, blocked or inconclusive.
	String() string

	// isResult seals the interface.
	isResult()
}

// Compile-time verification that all results implement Result.
var (
	_ Result = Allowed{}
	_ Result = Blocked{}
	_ Result = Inconclusive{}
)

// Allowed lets the agent finish. Note explains why, for the logs.
type Allowed struct {
	Note string
}

func (a Allowed) Allows() bool   { return true }
func (a Allowed) Reason() string { return a.Note }
func (a Allowed) String() string { return "passed" }
func (a Allowed) isResult()      {}

// Blocked sends the agent back to work with the reviewer's feedback.
type Blocked struct {
	Feedback string
}

// defaultBlockReason is used when a reviewer blocks without saying why.
const defaultBlockReason = "Code review found issues that must be fixed"

func (b Blocked) Allows() bool { return false }
func (b Blocked) Reason() string {
	if b.Feedback == "" {
		return defaultBlockReason
	}
	return b.Feedback
}
func (b Blocked) String() string { return "blocked" }
func (b Blocked) isResult()      {}

// Inconclusive records that no verdict could be obtained. It allows the
// agent.
type Inconclusive struct {
	Cause string
}

func (i Inconclusive) Allows() bool   { return true }
func (i Inconclusive) Reason() string { return i.Cause }
func (i Inconclusive) String() string { return "inconclusive" }
func (i Inconclusive) isResult()      {}

// Decision maps a result to the persisted tri-state decision: true for
// passed, false for blocked and nil for inconclusive.
func Decision(r Result) *bool {
	var d bool
	switch r.(type) {
	case Allowed:
		d = true
	case Blocked:
		d = false
	default:
		return nil
	}

	return &d
}

// Feedback returns the reviewer feedback carried by a result, if any.
func Feedback(r Result) string {
	switch v := r.(type) {
	case Blocked:
		return v.Feedback
	case Inconclusive:
		return v.Cause
	case Allowed:
		return v.Note
	default:
		return ""
	}
}

// HookDecision is the value recorded in review details: "block" for a
// blocking result and "allow" otherwise.
func HookDecision(r Result) string {
	if r.Allows() {
		return "allow"
	}
	return "block"
}
