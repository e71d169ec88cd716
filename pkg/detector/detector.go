package detector

// State is the detection state of one run.
type State int

const (
	// StateIdle is the state of a detector that has never been reset.
	StateIdle State = iota
	// StateArmed means the marker has not been seen yet in this run.
	StateArmed
	// StateTriggered means the marker was seen; every later token passes.
	StateTriggered
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	default:
		return "idle"
	}
}

// Outcome tells the caller what to do with an observed token.
type Outcome int

const (
	// OutcomeSuppressed: the token precedes the final answer; drop it.
	OutcomeSuppressed Outcome = iota
	// OutcomeTriggered: the token completed the marker; drop it, the
	// answer starts with the next token.
	OutcomeTriggered
	// OutcomePassThrough: the token belongs to the final answer; forward it.
	OutcomePassThrough
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeTriggered:
		return "triggered"
	case OutcomePassThrough:
		return "pass_through"
	default:
		return "suppressed"
	}
}

// Forward reports whether the observed token should be sent downstream.
func (o Outcome) Forward() bool {
	return o == OutcomePassThrough
}

// Detector is the per-connection detection state machine.
//
// Precondition: one Detector is driven by at most one run at a time, and the
// calls of a run are serialized (Reset, then Observe for each token). The
// Detector does no locking of its own; callers that cannot guarantee this
// must serialize access themselves (see callback.Handler).
type Detector struct {
	matcher *Matcher
	state   State
}

// New returns an idle Detector for the given marker. Call Reset before the
// first token of every run.
func New(marker []string) *Detector {
	return &Detector{matcher: NewMatcher(marker)}
}

// Reset arms the detector for a new run and clears the window. With an
// empty marker the detector is triggered right away and forwards every
// token. Calling Reset twice has the same effect as calling it once.
func (d *Detector) Reset() {
	d.matcher.Reset()
	if len(d.matcher.marker) == 0 {
		d.state = StateTriggered
		return
	}
	d.state = StateArmed
}

// Observe processes one raw token of the current run.
//
// While armed, the token is fed to the matcher: on a match the detector
// moves to StateTriggered and returns OutcomeTriggered, otherwise
// OutcomeSuppressed. Once triggered, every token returns OutcomePassThrough
// without touching the window again.
func (d *Detector) Observe(token string) (Outcome, error) {
	switch d.state {
	case StateTriggered:
		return OutcomePassThrough, nil
	case StateArmed:
		if d.matcher.Feed(token) {
			d.state = StateTriggered
			return OutcomeTriggered, nil
		}
		return OutcomeSuppressed, nil
	default:
		return OutcomeSuppressed, ErrNotArmed
	}
}

// State returns the current detection state.
func (d *Detector) State() State {
	return d.state
}

// Triggered reports whether the final answer has started in this run.
func (d *Detector) Triggered() bool {
	return d.state == StateTriggered
}

// Window returns a copy of the trailing window, oldest token first.
func (d *Detector) Window() []string {
	return d.matcher.Window()
}

// Marker returns a copy of the configured marker.
func (d *Detector) Marker() []string {
	return d.matcher.Marker()
}
