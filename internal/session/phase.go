package session

// Phase is the discriminator of a session's state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPermission
	PhasePermissionDenied
	PhaseLive
	PhaseCounting
	PhaseCaptured
	PhasePreviewing
	PhaseComposing
	PhasePublishing
	PhaseReady
	PhaseClosed
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseAwaitingPermission: "awaiting-permission",
	PhasePermissionDenied:   "permission-denied",
	PhaseLive:               "live",
	PhaseCounting:           "counting",
	PhaseCaptured:           "captured",
	PhasePreviewing:         "previewing",
	PhaseComposing:          "composing",
	PhasePublishing:         "publishing",
	PhaseReady:              "ready",
	PhaseClosed:             "closed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Affordance is the recovery action offered to the user after a failure.
type Affordance string

const (
	AffordanceNone            Affordance = ""
	AffordanceRetry           Affordance = "retry"
	AffordanceRetake          Affordance = "retake"
	AffordanceRetryPermission Affordance = "retry-permission"
	AffordanceRetryCode       Affordance = "retry-code"
)
