package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/codeminter"
	"github.com/jo-hoe/snapframe/internal/backend/composer"
	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/camera"
)

var (
	// ErrInvalidTransition is returned for commands the current phase does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStopped is returned once the machine's event loop has exited.
	ErrStopped = errors.New("session stopped")
)

type Composer interface {
	Compose(ctx context.Context, source []byte) (*composer.CompositeImage, error)
}

type Publisher interface {
	Publish(ctx context.Context, composite *composer.CompositeImage) (*database.PublishedRecord, error)
}

type Minter interface {
	Mint(ctx context.Context, id string) (*codeminter.RetrievalCode, error)
}

// Dependencies are the collaborators a session drives.
type Dependencies struct {
	Camera    camera.Camera
	Composer  Composer
	Publisher Publisher
	Minter    Minter
}

type Config struct {
	// CountdownFrom is the number of ticks between a capture request and the capture.
	CountdownFrom int
	TickInterval  time.Duration
	// OperationTimeout bounds each compose, publish and mint call. Zero disables it.
	OperationTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CountdownFrom:    3,
		TickInterval:     time.Second,
		OperationTimeout: time.Minute,
	}
}

func (c Config) validate() error {
	if c.CountdownFrom < 0 {
		return fmt.Errorf("countdown must not be negative, got %d", c.CountdownFrom)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation timeout must not be negative, got %s", c.OperationTimeout)
	}
	return nil
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdRetryPermission
	cmdCapture
	cmdRetake
	cmdContinue
	cmdRetry
	cmdRetryCode
	cmdFinish
	cmdReset
)

var commandNames = [...]string{
	cmdStart:           "start",
	cmdRetryPermission: "retry-permission",
	cmdCapture:         "capture",
	cmdRetake:          "retake",
	cmdContinue:        "continue",
	cmdRetry:           "retry",
	cmdRetryCode:       "retry-code",
	cmdFinish:          "finish",
	cmdReset:           "reset",
}

func (k commandKind) String() string {
	return commandNames[k]
}

type event interface{}

type command struct {
	kind  commandKind
	reply chan error
}

// Completion events carry the generation they were started in. Anything from
// an older generation belongs to abandoned work and is dropped.
type (
	permissionResult struct {
		gen uint64
		err error
	}
	tickEvent struct {
		gen uint64
	}
	captureResult struct {
		gen   uint64
		frame *camera.CaptureFrame
		err   error
	}
	composeResult struct {
		gen       uint64
		composite *composer.CompositeImage
		err       error
	}
	publishResult struct {
		gen    uint64
		record *database.PublishedRecord
		err    error
	}
	mintResult struct {
		gen  uint64
		code *codeminter.RetrievalCode
		err  error
	}
)

// Machine runs one kiosk session. A single event-loop goroutine owns all session
// state; camera, compose, publish and mint calls run in their own goroutines and
// report back through the loop.
type Machine struct {
	id     string
	deps   Dependencies
	config Config

	ctx    context.Context
	stop   context.CancelFunc
	events chan event
	done   chan struct{}

	// loop-owned
	current        state
	generation     uint64
	workCtx        context.Context
	cancelWork     context.CancelFunc
	timer          *time.Timer
	publishLatched bool

	mu       sync.RWMutex
	snapshot Snapshot
	changed  chan struct{}
}

func New(id string, deps Dependencies, config Config) (*Machine, error) {
	if deps.Camera == nil || deps.Composer == nil || deps.Publisher == nil || deps.Minter == nil {
		return nil, fmt.Errorf("session %s: camera, composer, publisher and minter are required", id)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	m := &Machine{
		id:      id,
		deps:    deps,
		config:  config,
		ctx:     ctx,
		stop:    stop,
		events:  make(chan event, 16),
		done:    make(chan struct{}),
		current: idleState{},
		changed: make(chan struct{}),
	}
	m.workCtx, m.cancelWork = context.WithCancel(ctx)
	m.snapshot = describe(id, m.current)
	m.snapshot.UpdatedAt = time.Now()

	go m.run()
	return m, nil
}

func (m *Machine) ID() string {
	return m.id
}

// Start requests camera access.
func (m *Machine) Start(ctx context.Context) error { return m.send(ctx, cmdStart) }

// RetryPermission asks for camera access again after a denial.
func (m *Machine) RetryPermission(ctx context.Context) error {
	return m.send(ctx, cmdRetryPermission)
}

// Capture starts the countdown. It is ignored while a countdown is running.
func (m *Machine) Capture(ctx context.Context) error { return m.send(ctx, cmdCapture) }

// Retake discards the captured frame and any composition for it.
func (m *Machine) Retake(ctx context.Context) error { return m.send(ctx, cmdRetake) }

// Continue accepts the previewed frame and starts composition.
func (m *Machine) Continue(ctx context.Context) error { return m.send(ctx, cmdContinue) }

// Retry repeats whichever step failed.
func (m *Machine) Retry(ctx context.Context) error { return m.send(ctx, cmdRetry) }

// RetryCode renders the retrieval code again. It never publishes.
func (m *Machine) RetryCode(ctx context.Context) error { return m.send(ctx, cmdRetryCode) }

// Finish closes a ready session and releases its resources.
func (m *Machine) Finish(ctx context.Context) error { return m.send(ctx, cmdFinish) }

// Reset discards everything and returns to idle.
func (m *Machine) Reset(ctx context.Context) error { return m.send(ctx, cmdReset) }

// Snapshot returns the latest published view of the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// WaitFor blocks until the session satisfies cond or ctx is done.
func (m *Machine) WaitFor(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.RLock()
		snap, changed := m.snapshot, m.changed
		m.mu.RUnlock()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-m.done:
			final := m.Snapshot()
			if cond(final) {
				return final, nil
			}
			return final, ErrStopped
		}
	}
}

// Stop terminates the event loop, abandoning any in-flight work.
func (m *Machine) Stop() {
	m.stop()
	<-m.done
}

// Done is closed once the event loop has exited.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) send(ctx context.Context, kind commandKind) error {
	reply := make(chan error, 1)
	select {
	case m.events <- command{kind: kind, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// post delivers a completion event unless the loop has already exited.
func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Machine) run() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.abandonWork()
			m.deps.Camera.Release()
			slog.Debug("Session: event loop stopped", "session_id", m.id)
			return
		case ev := <-m.events:
			reply, err := m.handle(ev)
			m.publishSnapshot()
			// Reply after publishing so callers observe the state their command produced.
			if reply != nil {
				reply <- err
			}
		}
	}
}

func (m *Machine) publishSnapshot() {
	snap := describe(m.id, m.current)

	m.mu.Lock()
	previous := m.snapshot.Phase
	snap.Version = m.snapshot.Version + 1
	snap.UpdatedAt = time.Now()
	m.snapshot = snap
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if previous != snap.Phase {
		slog.Info("Session: phase changed", "session_id", m.id, "from", previous.String(), "to", snap.Phase.String())
	}
}

func (m *Machine) handle(ev event) (chan<- error, error) {
	switch e := ev.(type) {
	case command:
		err := m.handleCommand(e.kind)
		if err != nil {
			slog.Debug("Session: command rejected", "session_id", m.id, "command", e.kind.String(), "error", err)
		}
		return e.reply, err
	case permissionResult:
		m.onPermission(e)
	case tickEvent:
		m.onTick(e)
	case captureResult:
		m.onCapture(e)
	case composeResult:
		m.onCompose(e)
	case publishResult:
		m.onPublish(e)
	case mintResult:
		m.onMint(e)
	}
	return nil, nil
}

func (m *Machine) invalid(kind commandKind) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, kind, m.current.phase())
}

func (m *Machine) handleCommand(kind commandKind) error {
	if kind == cmdReset {
		m.abandonWork()
		m.deps.Camera.Release()
		m.publishLatched = false
		m.current = idleState{}
		return nil
	}

	switch st := m.current.(type) {
	case idleState:
		if kind == cmdStart {
			m.requestPermission()
			return nil
		}
	case permissionDeniedState:
		if kind == cmdRetryPermission || kind == cmdRetry {
			m.requestPermission()
			return nil
		}
	case liveState:
		if kind == cmdCapture {
			m.startCountdown()
			return nil
		}
	case countingState:
		if kind == cmdCapture {
			// a second capture request must not start a second countdown
			return nil
		}
	case capturedState, previewingState:
		switch kind {
		case cmdRetake:
			m.retake()
			return nil
		case cmdContinue:
			if p, ok := st.(previewingState); ok {
				m.startCompose(p.frame)
				return nil
			}
		}
	case composingState:
		switch {
		case kind == cmdRetake:
			m.retake()
			return nil
		case kind == cmdRetry && st.failure != nil:
			m.startCompose(st.frame)
			return nil
		}
	case publishingState:
		// An in-flight publish can neither be retaken nor retried.
		if st.failure != nil {
			switch kind {
			case cmdRetry:
				m.publishLatched = false
				m.beginPublish(st.frame, st.composite)
				return nil
			case cmdRetake:
				m.retake()
				return nil
			}
		}
	case readyState:
		switch {
		case kind == cmdFinish:
			m.abandonWork()
			m.deps.Camera.Release()
			m.current = closedState{record: st.record}
			return nil
		case (kind == cmdRetryCode || kind == cmdRetry) && st.codeErr != nil:
			st.codeErr = nil
			m.current = st
			m.startMint(st.record.ID)
			return nil
		}
	}
	return m.invalid(kind)
}

// abandonWork cancels in-flight work and moves to a new generation, so late
// completions of the old work are ignored.
func (m *Machine) abandonWork() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelWork != nil {
		m.cancelWork()
	}
	m.generation++
	m.workCtx, m.cancelWork = context.WithCancel(m.ctx)
}

func (m *Machine) operationContext() (context.Context, context.CancelFunc) {
	if m.config.OperationTimeout > 0 {
		return context.WithTimeout(m.workCtx, m.config.OperationTimeout)
	}
	return context.WithCancel(m.workCtx)
}

func (m *Machine) requestPermission() {
	m.abandonWork()
	m.current = awaitingPermissionState{}
	gen, ctx := m.generation, m.workCtx
	go func() {
		err := m.deps.Camera.RequestAccess(ctx)
		m.post(permissionResult{gen: gen, err: err})
	}()
}

func (m *Machine) onPermission(e permissionResult) {
	if e.gen != m.generation || m.current.phase() != PhaseAwaitingPermission {
		return
	}
	if e.err != nil {
		slog.Warn("Session: camera permission denied", "session_id", m.id, "error", e.err)
		m.current = permissionDeniedState{err: e.err}
		return
	}
	m.current = liveState{}
}

func (m *Machine) startCountdown() {
	m.abandonWork()
	if m.config.CountdownFrom == 0 {
		m.current = countingState{remaining: 0}
		m.startCapture()
		return
	}
	m.current = countingState{remaining: m.config.CountdownFrom}
	m.scheduleTick()
}

func (m *Machine) scheduleTick() {
	gen := m.generation
	m.timer = time.AfterFunc(m.config.TickInterval, func() {
		m.post(tickEvent{gen: gen})
	})
}

func (m *Machine) onTick(e tickEvent) {
	st, ok := m.current.(countingState)
	if e.gen != m.generation || !ok || st.remaining == 0 {
		return
	}
	m.timer = nil
	st.remaining--
	m.current = st
	if st.remaining > 0 {
		m.scheduleTick()
		return
	}
	m.startCapture()
}

func (m *Machine) startCapture() {
	gen, ctx := m.generation, m.workCtx
	go func() {
		frame, err := m.deps.Camera.Capture(ctx)
		m.post(captureResult{gen: gen, frame: frame, err: err})
	}()
}

func (m *Machine) onCapture(e captureResult) {
	if e.gen != m.generation || m.current.phase() != PhaseCounting {
		return
	}
	if e.err != nil {
		slog.Error("Session: capture failed", "session_id", m.id, "error", e.err)
		m.current = liveState{captureErr: e.err}
		return
	}
	m.current = capturedState{frame: e.frame}
	m.publishSnapshot()
	m.current = previewingState{frame: e.frame}
}

func (m *Machine) retake() {
	m.abandonWork()
	// Nothing was published for the discarded frame, so the next frame may publish.
	m.publishLatched = false
	m.current = liveState{}
}

func (m *Machine) startCompose(frame *camera.CaptureFrame) {
	m.current = composingState{frame: frame}
	gen := m.generation
	ctx, cancel := m.operationContext()
	go func() {
		defer cancel()
		composite, err := m.deps.Composer.Compose(ctx, frame.Data)
		m.post(composeResult{gen: gen, composite: composite, err: err})
	}()
}

func (m *Machine) onCompose(e composeResult) {
	if e.gen != m.generation {
		slog.Debug("Session: dropping stale composition", "session_id", m.id)
		return
	}
	if e.err != nil {
		st, ok := m.current.(composingState)
		if !ok || st.failure != nil {
			return
		}
		affordance := AffordanceRetry
		var decodeErr *composer.SourceDecodeError
		if errors.As(e.err, &decodeErr) {
			affordance = AffordanceRetake
		}
		slog.Error("Session: composition failed", "session_id", m.id, "error", e.err, "affordance", string(affordance))
		st.failure = &failure{err: e.err, affordance: affordance}
		m.current = st
		return
	}

	if m.publishLatched {
		slog.Warn("Session: duplicate publish trigger suppressed", "session_id", m.id)
		return
	}
	st, ok := m.current.(composingState)
	if !ok {
		return
	}
	m.beginPublish(st.frame, e.composite)
}

// beginPublish starts the one publish attempt allowed per accepted frame.
func (m *Machine) beginPublish(frame *camera.CaptureFrame, composite *composer.CompositeImage) {
	if m.publishLatched {
		slog.Warn("Session: duplicate publish trigger suppressed", "session_id", m.id)
		return
	}
	m.publishLatched = true
	m.current = publishingState{frame: frame, composite: composite}

	gen := m.generation
	ctx, cancel := m.operationContext()
	go func() {
		defer cancel()
		record, err := m.deps.Publisher.Publish(ctx, composite)
		m.post(publishResult{gen: gen, record: record, err: err})
	}()
}

func (m *Machine) onPublish(e publishResult) {
	st, ok := m.current.(publishingState)
	if e.gen != m.generation || !ok || st.failure != nil {
		return
	}
	if e.err != nil {
		slog.Error("Session: publish failed", "session_id", m.id, "error", e.err)
		st.failure = &failure{err: e.err, affordance: AffordanceRetry}
		m.current = st
		return
	}
	m.current = readyState{composite: st.composite, record: e.record}
	m.startMint(e.record.ID)
}

func (m *Machine) startMint(id string) {
	gen := m.generation
	ctx, cancel := m.operationContext()
	go func() {
		defer cancel()
		code, err := m.deps.Minter.Mint(ctx, id)
		m.post(mintResult{gen: gen, code: code, err: err})
	}()
}

func (m *Machine) onMint(e mintResult) {
	st, ok := m.current.(readyState)
	if e.gen != m.generation || !ok || st.code != nil {
		return
	}
	if e.err != nil {
		slog.Error("Session: retrieval code failed", "session_id", m.id, "record_id", st.record.ID, "error", e.err)
		st.codeErr = e.err
	} else {
		st.code = e.code
	}
	m.current = st
}
