package session

import (
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/codeminter"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/camera"
)

// state is the tagged union of per-phase payloads. Each variant carries exactly
// what its phase needs, so e.g. a composing state always has its frame.
type state interface {
	phase() Phase
}

type idleState struct{}

type awaitingPermissionState struct{}

type permissionDeniedState struct {
	err error
}

type liveState struct {
	// captureErr is set when the last countdown ended without a frame.
	captureErr error
}

type countingState struct {
	remaining int
}

type capturedState struct {
	frame *camera.CaptureFrame
}

type previewingState struct {
	frame *camera.CaptureFrame
}

// failure is a visible, recoverable error within a phase.
type failure struct {
	err        error
	affordance Affordance
}

type composingState struct {
	frame   *camera.CaptureFrame
	failure *failure
}

type publishingState struct {
	frame     *camera.CaptureFrame
	composite *composer.CompositeImage
	failure   *failure
}

type readyState struct {
	composite *composer.CompositeImage
	record    *database.PublishedRecord
	code      *codeminter.RetrievalCode
	codeErr   error
}

type closedState struct {
	record *database.PublishedRecord
}

func (idleState) phase() Phase               { return PhaseIdle }
func (awaitingPermissionState) phase() Phase { return PhaseAwaitingPermission }
func (permissionDeniedState) phase() Phase   { return PhasePermissionDenied }
func (liveState) phase() Phase               { return PhaseLive }
func (countingState) phase() Phase           { return PhaseCounting }
func (capturedState) phase() Phase           { return PhaseCaptured }
func (previewingState) phase() Phase         { return PhasePreviewing }
func (composingState) phase() Phase          { return PhaseComposing }
func (publishingState) phase() Phase         { return PhasePublishing }
func (readyState) phase() Phase              { return PhaseReady }
func (closedState) phase() Phase             { return PhaseClosed }

// Snapshot is a read-only view of a session, safe to hand to other goroutines.
// The referenced frame, composite, record and code are immutable.
type Snapshot struct {
	ID         string
	Phase      Phase
	Version    uint64
	UpdatedAt  time.Time
	Countdown  int
	Affordance Affordance
	Error      string
	Frame      *camera.CaptureFrame
	Composite  *composer.CompositeImage
	Record     *database.PublishedRecord
	Code       *codeminter.RetrievalCode
}

func describe(id string, s state) Snapshot {
	snap := Snapshot{ID: id, Phase: s.phase()}
	switch st := s.(type) {
	case permissionDeniedState:
		snap.Affordance = AffordanceRetryPermission
		snap.Error = errorText(st.err)
	case liveState:
		snap.Error = errorText(st.captureErr)
	case countingState:
		snap.Countdown = st.remaining
	case capturedState:
		snap.Frame = st.frame
	case previewingState:
		snap.Frame = st.frame
	case composingState:
		snap.Frame = st.frame
		if st.failure != nil {
			snap.Affordance = st.failure.affordance
			snap.Error = errorText(st.failure.err)
		}
	case publishingState:
		snap.Composite = st.composite
		if st.failure != nil {
			snap.Affordance = st.failure.affordance
			snap.Error = errorText(st.failure.err)
		}
	case readyState:
		snap.Composite = st.composite
		snap.Record = st.record
		snap.Code = st.code
		if st.codeErr != nil {
			snap.Affordance = AffordanceRetryCode
			snap.Error = errorText(st.codeErr)
		}
	case closedState:
		snap.Record = st.record
	}
	return snap
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
