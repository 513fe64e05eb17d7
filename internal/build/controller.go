package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/artifacts"
	"github.com/cochaviz/apkforge/internal/logging"
)

// ArchiveValidator inspects an uploaded archive before any phase runs.
type ArchiveValidator interface {
	Validate(ctx context.Context, file *archive.File) (archive.Result, error)
}

// ControllerOptions configures a Controller. Zero values select the archive
// validator, an in-memory artifact store, the system clock and DefaultPlan.
type ControllerOptions struct {
	Logger        *slog.Logger
	Validator     ArchiveValidator
	ArtifactStore artifacts.ArtifactStore
	Clock         Clock
	Plan          Plan
}

// attempt is the state owned by a single StartBuild call. Once finished it is
// inert: every callback holding it checks the flags under Controller.mu.
type attempt struct {
	id     string
	config BuildConfig
	ctx    context.Context
	cancel context.CancelFunc
	timers *timerSet
	done   chan struct{}

	cancelled bool
	finished  bool
}

// Controller owns the lifecycle of one simulated build at a time.
type Controller struct {
	logger    *slog.Logger
	validator ArchiveValidator
	store     artifacts.ArtifactStore
	clock     Clock
	plan      Plan

	mu         sync.Mutex
	status     Status
	progress   int
	logs       []LogEntry
	artifact   *artifacts.Artifact
	errMessage string
	startedAt  time.Time
	finishedAt time.Time
	current    *attempt

	subscribers map[uint64]chan Event
	nextSub     uint64
}

// NewController validates the phase plan and returns an idle controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	plan := opts.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	logger := logging.Ensure(opts.Logger)

	validator := opts.Validator
	if validator == nil {
		validator = archive.Validator{Logger: logger.With("component", "archive")}
	}
	store := opts.ArtifactStore
	if store == nil {
		store = artifacts.NewMemoryArtifactStore()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}

	return &Controller{
		logger:      logger,
		validator:   validator,
		store:       store,
		clock:       clock,
		plan:        append(Plan(nil), plan...),
		status:      StatusIdle,
		subscribers: make(map[uint64]chan Event),
	}, nil
}

// Plan returns a copy of the phases this controller runs.
func (c *Controller) Plan() Plan {
	return append(Plan(nil), c.plan...)
}

// StartBuild resets all state from the previous attempt and starts a new one in
// the background. Progress, logs and the outcome are observed through the
// accessors, Subscribe or Wait. Faults inside the attempt never surface here;
// the only error is ErrBuildInProgress.
func (c *Controller) StartBuild(config BuildConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return ErrBuildInProgress
	}

	c.releaseArtifactLocked()

	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:     uuid.NewString(),
		config: config,
		ctx:    ctx,
		cancel: cancel,
		timers: newTimerSet(),
		done:   make(chan struct{}),
	}

	c.current = a
	c.status = StatusRunning
	c.progress = 0
	c.logs = nil
	c.errMessage = ""
	c.startedAt = c.clock.Now()
	c.finishedAt = time.Time{}

	c.logger.Info("build started", "build_id", a.id, "app", config.AppName, "phases", len(c.plan))
	c.publishLocked(EventStatus, nil)
	c.appendLocked(a, LevelInfo, TagStart, fmt.Sprintf("Starting build for app: %s", config.AppName))

	go c.run(a)
	return nil
}

// CancelBuild aborts the running attempt. It is a no-op in any other state.
func (c *Controller) CancelBuild() {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.current
	if a == nil || !c.activeLocked(a) {
		return
	}
	c.cancelLocked(a)
}

// ClearLogs returns the controller to idle from any state, abandoning a running
// attempt and releasing the artifact.
func (c *Controller) ClearLogs() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a := c.current; a != nil && !a.finished {
		a.cancelled = true
		c.endAttemptLocked(a)
		c.logger.Info("build abandoned by clear", "build_id", a.id)
	}
	c.releaseArtifactLocked()

	c.current = nil
	c.status = StatusIdle
	c.progress = 0
	c.logs = nil
	c.errMessage = ""
	c.startedAt = time.Time{}
	c.finishedAt = time.Time{}
	c.publishLocked(EventStatus, nil)
}

// Close clears the controller and disconnects every subscriber.
func (c *Controller) Close() {
	c.ClearLogs()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

// Wait blocks until the current attempt reaches a terminal state or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	a := c.current
	if a == nil || a.finished {
		snapshot := c.snapshotLocked()
		c.mu.Unlock()
		return snapshot, nil
	}
	done := a.done
	c.mu.Unlock()

	select {
	case <-done:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// OpenArtifact opens the payload of the completed build.
func (c *Controller) OpenArtifact() (io.ReadCloser, artifacts.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusCompleted || c.artifact == nil {
		return nil, artifacts.Artifact{}, ErrNoArtifact
	}
	rc, err := c.store.Open(*c.artifact)
	if err != nil {
		return nil, artifacts.Artifact{}, err
	}
	return rc, *c.artifact, nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Progress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Logs returns a copy of the current attempt's log.
func (c *Controller) Logs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.logs...)
}

// Artifact returns the artifact handle, present only once completed.
func (c *Controller) Artifact() (artifacts.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCompleted || c.artifact == nil {
		return artifacts.Artifact{}, false
	}
	return *c.artifact, true
}

// Error returns the recorded fault message, present only in the error state.
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusError {
		return ""
	}
	return c.errMessage
}

func (c *Controller) run(a *attempt) {
	if a.config.Archive == nil {
		c.fail(a, ErrMissingInput)
		return
	}

	result, err := c.validator.Validate(a.ctx, a.config.Archive)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(a) {
		return
	}
	if err != nil {
		c.failLocked(a, err)
		return
	}

	c.setProgressLocked(ValidatedProgress)
	c.appendLocked(a, LevelSuccess, TagValidate, fmt.Sprintf(
		"Web project validated: %d entries, entry point %s", result.EntryCount, result.EntryPath))
	c.scheduleLocked(a, 0)
}

// scheduleLocked arms phase i. The next phase is only armed after the previous
// one applied its effect, which keeps phases strictly ordered.
func (c *Controller) scheduleLocked(a *attempt, i int) {
	phase := c.plan[i]
	if !a.timers.schedule(c.clock, phase.Delay, func() { c.firePhase(a, i) }) {
		c.logger.Debug("phase not scheduled, attempt closed", "build_id", a.id, "phase", phase.Name)
	}
}

func (c *Controller) firePhase(a *attempt, i int) {
	phase := c.plan[i]

	c.mu.Lock()
	active := c.activeLocked(a)
	c.mu.Unlock()
	if !active {
		return
	}

	if phase.Action != nil {
		if err := phase.Action(a.ctx, a.config); err != nil {
			c.fail(a, fmt.Errorf("%s: %w", phase.Name, err))
			return
		}
	}

	c.mu.Lock()
	if !c.activeLocked(a) {
		c.mu.Unlock()
		return
	}
	c.appendLocked(a, phase.level(), phase.Name, phase.render(a.config))
	c.setProgressLocked(phase.Progress)
	if i+1 < len(c.plan) {
		c.scheduleLocked(a, i+1)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.complete(a)
}

func (c *Controller) complete(a *attempt) {
	name := ArtifactName(a.config.AppName)
	packageID := a.config.ResolvedPackageID()
	payload := artifacts.PlaceholderPackage(a.config.AppName, packageID, c.clock.Now())

	stored, err := c.store.StoreArtifact(name, artifacts.PackageArtifact, payload, map[string]any{
		"buildId":   a.id,
		"appName":   a.config.AppName,
		"packageId": packageID,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked(a) {
		if err == nil {
			if removeErr := c.store.RemoveArtifact(stored); removeErr != nil {
				c.logger.Warn("release orphaned artifact", "build_id", a.id, "error", removeErr)
			}
		}
		return
	}
	if err != nil {
		c.failLocked(a, fmt.Errorf("store artifact: %w", err))
		return
	}

	c.artifact = &stored
	c.setProgressLocked(100)
	c.appendLocked(a, LevelSuccess, TagSuccess, fmt.Sprintf("APK generated: %s", stored.Name))
	c.finishLocked(a, StatusCompleted)
	c.logger.Info("build completed", "build_id", a.id, "artifact", stored.Name, "uri", stored.URI)
}

func (c *Controller) fail(a *attempt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(a) {
		return
	}
	c.failLocked(a, err)
}

// failLocked translates a fault into the error state. Cancellation signals
// route to the cancelled state instead.
func (c *Controller) failLocked(a *attempt, err error) {
	if a.cancelled {
		return
	}
	if errors.Is(err, ErrCancelled) {
		c.cancelLocked(a)
		return
	}

	c.errMessage = err.Error()
	c.appendLocked(a, LevelError, TagError, fmt.Sprintf("Build failed: %s", c.errMessage))
	c.finishLocked(a, StatusError)
	c.logger.Error("build failed", "build_id", a.id, "error", err)
}

func (c *Controller) cancelLocked(a *attempt) {
	a.cancelled = true
	stopped := a.timers.stopAll()
	c.appendLocked(a, LevelWarn, TagCancelled, "Build cancelled by user.")
	c.finishLocked(a, StatusCancelled)
	c.logger.Info("build cancelled", "build_id", a.id, "stopped_timers", stopped)
}

func (c *Controller) finishLocked(a *attempt, status Status) {
	c.endAttemptLocked(a)
	c.status = status
	c.finishedAt = c.clock.Now()
	c.publishLocked(EventStatus, nil)
}

func (c *Controller) endAttemptLocked(a *attempt) {
	if a.finished {
		return
	}
	a.finished = true
	a.timers.stopAll()
	a.cancel()
	close(a.done)
}

func (c *Controller) activeLocked(a *attempt) bool {
	return c.current == a && !a.finished && !a.cancelled
}

func (c *Controller) setProgressLocked(progress int) {
	if progress <= c.progress {
		return
	}
	if progress > 100 {
		progress = 100
	}
	c.progress = progress
	c.publishLocked(EventProgress, nil)
}

func (c *Controller) appendLocked(a *attempt, level Level, tag, message string) {
	entry := LogEntry{
		Timestamp: c.clock.Now().Format(timestampLayout),
		Level:     level,
		Message:   message,
		Tag:       tag,
	}
	c.logs = append(c.logs, entry)
	c.logger.Debug("build log", "build_id", a.id, "level", string(level), "tag", tag, "message", message)
	c.publishLocked(EventLog, &entry)
}

func (c *Controller) releaseArtifactLocked() {
	if c.artifact == nil {
		return
	}
	if err := c.store.RemoveArtifact(*c.artifact); err != nil {
		c.logger.Warn("release artifact", "artifact", c.artifact.Name, "error", err)
	}
	c.artifact = nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Status:   c.status,
		Progress: c.progress,
		Logs:     append([]LogEntry{}, c.logs...),
	}
	if c.current != nil {
		snapshot.BuildID = c.current.id
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		snapshot.StartedAt = &started
	}
	if !c.finishedAt.IsZero() {
		finished := c.finishedAt
		snapshot.FinishedAt = &finished
	}
	if c.status == StatusCompleted && c.artifact != nil {
		handle := *c.artifact
		snapshot.Artifact = &handle
		snapshot.ApkURL = handle.URI
		snapshot.ApkName = handle.Name
	}
	if c.status == StatusError {
		snapshot.Error = c.errMessage
	}
	return snapshot
}
