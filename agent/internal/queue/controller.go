package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetpush/agent/internal/db"
	"fleetpush/agent/internal/download"
	"fleetpush/agent/internal/installer"
	"fleetpush/agent/internal/state"
	"fleetpush/agent/internal/telemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrStopped      = errors.New("queue controller stopped")
	ErrItemNotFound = errors.New("queue item not found")
	ErrNotPending   = errors.New("queue item is not waiting for user action")
)

// Persister is the slice of the runtime state store the controller writes to.
type Persister interface {
	Put(key string, v any) error
	Get(key string, v any) (bool, error)
	AppendLog(rec db.LogRecord) error
}

type Options struct {
	Policy Policy
	// ItemTimeout bounds one attempt; zero means 30 minutes.
	ItemTimeout time.Duration
	// TelemetryTimeout bounds one sink call; zero means 2 seconds.
	TelemetryTimeout time.Duration
	Logger           zerolog.Logger
}

type workerMsg struct {
	id     string
	stage  Stage
	done   bool
	result installer.Result
	err    error
}

type progressMsg struct {
	id          string
	done, total int64
}

// Controller owns the install queue. All state below the channels is touched
// only by the Run goroutine; callers reach it through messages.
type Controller struct {
	exec             installer.Executor
	store            Persister
	sink             telemetry.Sink
	log              zerolog.Logger
	itemTimeout      time.Duration
	telemetryTimeout time.Duration
	now              func() time.Time
	newID            func() string

	reqs     chan func()
	results  chan workerMsg
	progress chan progressMsg
	stopped  chan struct{}

	runCtx       context.Context
	items        []*Item
	policy       Policy
	running      bool
	halted       bool
	active       string
	cancelActive context.CancelFunc
	subs         map[int]chan Event
	nextSub      int
}

func New(exec installer.Executor, store Persister, sink telemetry.Sink, opts Options) *Controller {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Minute
	}
	if opts.TelemetryTimeout <= 0 {
		opts.TelemetryTimeout = 2 * time.Second
	}
	if opts.Policy.Failure == "" {
		opts.Policy.Failure = RetryThenContinue
	}
	return &Controller{
		exec:             exec,
		store:            store,
		sink:             sink,
		log:              opts.Logger,
		itemTimeout:      opts.ItemTimeout,
		telemetryTimeout: opts.TelemetryTimeout,
		now:              time.Now,
		newID:            uuid.NewString,
		reqs:             make(chan func()),
		results:          make(chan workerMsg),
		progress:         make(chan progressMsg, 16),
		stopped:          make(chan struct{}),
		policy:           opts.Policy,
		subs:             make(map[int]chan Event),
	}
}

// Run restores persisted state and processes messages until ctx is done.
// An in-flight attempt is abandoned on exit and retried after the next start.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.stopped)
	c.restore()
	c.schedule()
	for {
		select {
		case <-ctx.Done():
			if c.cancelActive != nil {
				c.cancelActive()
			}
			for id, ch := range c.subs {
				close(ch)
				delete(c.subs, id)
			}
			return ctx.Err()
		case f := <-c.reqs:
			f()
		case m := <-c.results:
			c.handleWorker(m)
		case p := <-c.progress:
			c.handleProgress(p)
		}
	}
}

func (c *Controller) call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	select {
	case c.reqs <- func() { f(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

// Enqueue adds installs, skipping releases already at the latest version and
// pairs that already have a live item. A terminally failed item for the same
// pair is reset instead. It returns the items that were added or reset.
func (c *Controller) Enqueue(ctx context.Context, reqs ...Request) ([]Item, error) {
	var out []Item
	err := c.call(ctx, func() { out = c.enqueue(reqs) })
	return out, err
}

// Start begins draining queued items. It also resumes a halted run.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, func() {
		if c.running {
			return
		}
		c.running = true
		c.halted = false
		c.persist()
		c.appendLog(nil, zerolog.InfoLevel, "run started")
		c.schedule()
	})
}

// SetPolicy takes effect at the next scheduling decision.
func (c *Controller) SetPolicy(ctx context.Context, p Policy) error {
	if _, err := ParseFailurePolicy(string(p.Failure)); err != nil {
		return err
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	return c.call(ctx, func() {
		if c.policy == p {
			return
		}
		c.policy = p
		c.persist()
		c.appendLog(nil, zerolog.InfoLevel, fmt.Sprintf("policy set to %s with %d retries", p.Failure, p.MaxRetries))
	})
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() { s = c.snapshot() })
	return s, err
}

// ClearFinished drops succeeded and terminally failed items.
func (c *Controller) ClearFinished(ctx context.Context) (int, error) {
	var n int
	err := c.call(ctx, func() {
		kept := c.items[:0]
		for _, it := range c.items {
			if it.Stage.Terminal() && it.ID != c.active {
				n++
				continue
			}
			kept = append(kept, it)
		}
		clear(c.items[len(kept):])
		c.items = kept
		if n > 0 {
			c.persist()
			c.appendLog(nil, zerolog.InfoLevel, fmt.Sprintf("cleared %d finished items", n))
		}
	})
	return n, err
}

// Resolve records the user's answer for an item waiting on confirmation.
func (c *Controller) Resolve(ctx context.Context, id string, installed bool) (Item, error) {
	var (
		out  Item
		rerr error
	)
	err := c.call(ctx, func() {
		it := c.find(id)
		switch {
		case it == nil:
			rerr = ErrItemNotFound
			return
		case it.Stage != StagePendingUserAction:
			rerr = fmt.Errorf("%w: %s is %s", ErrNotPending, id, it.Stage)
			return
		}
		if installed {
			it.Stage = StageSuccess
			c.commit(it, zerolog.InfoLevel, "installed after user confirmation")
			c.emit(telemetry.InstallSuccess, it, "")
		} else {
			it.Stage = StageFailed
			it.FailureMessage = errDeclined.Error()
			it.FailureCode = CodeDeclined
			c.commitErr(it, zerolog.WarnLevel, it.FailureMessage, errDeclined)
			c.emit(telemetry.InstallFailed, it, it.FailureMessage)
		}
		out = it.clone()
	})
	if err != nil {
		return Item{}, err
	}
	return out, rerr
}

// Subscribe returns a channel of transitions. Events are dropped for a
// subscriber whose buffer is full. The channel is closed when the controller
// stops or cancel is called.
func (c *Controller) Subscribe(ctx context.Context, buf int) (<-chan Event, func(), error) {
	ch := make(chan Event, max(buf, 1))
	var id int
	if err := c.call(ctx, func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
	}); err != nil {
		return nil, nil, err
	}
	cancel := func() {
		_ = c.call(context.Background(), func() {
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

func (c *Controller) enqueue(reqs []Request) []Item {
	var out []Item
	for _, r := range reqs {
		if r.Classification == Latest {
			c.log.Debug().Str("package", r.PackageName).Int64("version", r.VersionCode).Msg("already latest, skipped")
			continue
		}
		if it := c.findLive(r.PackageName, r.VersionCode); it != nil {
			if it.Stage == StageFailed {
				it.Stage = StageQueued
				it.Attempts = 0
				it.FailureMessage = ""
				it.FailureCode = ""
				it.BytesDone, it.BytesTotal = 0, 0
				it.attach(r.CommandID)
				c.commit(it, zerolog.InfoLevel, "failed item queued again")
				out = append(out, it.clone())
			} else if it.attach(r.CommandID) {
				c.commit(it, zerolog.DebugLevel, fmt.Sprintf("command %d attached", r.CommandID))
			}
			continue
		}
		now := c.now()
		it := &Item{
			ID:                c.newID(),
			PackageName:       r.PackageName,
			DisplayName:       r.DisplayName,
			VersionCode:       r.VersionCode,
			URL:               r.URL,
			SHA256:            r.SHA256,
			Size:              r.Size,
			SignerFingerprint: r.SignerFingerprint,
			Classification:    r.Classification,
			Stage:             StageQueued,
			EnqueuedAt:        now,
		}
		it.attach(r.CommandID)
		c.items = append(c.items, it)
		c.commit(it, zerolog.InfoLevel, "enqueued")
		out = append(out, it.clone())
	}
	c.schedule()
	return out
}

// schedule starts the next queued item when the run is active and idle.
func (c *Controller) schedule() {
	if !c.running || c.active != "" {
		return
	}
	var next *Item
	for _, it := range c.items {
		if it.Stage == StageQueued {
			next = it
			break
		}
	}
	if next == nil {
		c.running = false
		c.persist()
		c.appendLog(nil, zerolog.InfoLevel, "queue drained")
		c.notify(Event{Message: "queue drained"})
		return
	}
	c.active = next.ID
	next.Attempts++
	next.Policy = c.policy
	next.BytesDone, next.BytesTotal = 0, 0
	c.commit(next, zerolog.InfoLevel, fmt.Sprintf("attempt %d started", next.Attempts))
	c.startWorker(next.clone())
}

func (c *Controller) startWorker(it Item) {
	ctx, cancel := context.WithTimeout(c.runCtx, c.itemTimeout)
	c.cancelActive = cancel
	job := installer.Job{
		ItemID:      it.ID,
		PackageName: it.PackageName,
		VersionCode: it.VersionCode,
		URL:         it.URL,
		Expect:      download.Expect{Size: it.Size, SHA256: it.SHA256, SignerFingerprint: it.SignerFingerprint},
	}
	hooks := installer.Hooks{
		OnStage: func(s installer.Stage) { c.send(workerMsg{id: it.ID, stage: Stage(s)}) },
		OnProgress: func(done, total int64) {
			select {
			case c.progress <- progressMsg{id: it.ID, done: done, total: total}:
			default:
			}
		},
	}
	go func() {
		defer cancel()
		res, err := c.exec.Execute(ctx, job, hooks)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && c.runCtx.Err() == nil {
			err = &download.TransportError{Op: "item timeout", Err: fmt.Errorf("attempt exceeded %s: %w", c.itemTimeout, err)}
		}
		c.send(workerMsg{id: it.ID, done: true, result: res, err: err})
	}()
}

func (c *Controller) send(m workerMsg) {
	select {
	case c.results <- m:
	case <-c.stopped:
	}
}

func (c *Controller) handleWorker(m workerMsg) {
	it := c.find(m.id)
	if it == nil || c.active != m.id {
		return
	}
	if !m.done {
		it.Stage = m.stage
		c.commit(it, zerolog.InfoLevel, string(m.stage))
		switch m.stage {
		case StageDownloading:
			c.emit(telemetry.DownloadStarted, it, "")
		case StageVerifying:
			c.emit(telemetry.DownloadFinished, it, "")
		case StageInstalling:
			c.emit(telemetry.InstallRequested, it, "")
		}
		return
	}

	c.active = ""
	c.cancelActive = nil
	switch {
	case m.err == nil && m.result.Outcome == installer.PendingUserAction:
		it.Stage = StagePendingUserAction
		it.ArtifactPath = m.result.Artifact.Path
		c.commit(it, zerolog.InfoLevel, "waiting for user confirmation")
	case m.err == nil:
		it.Stage = StageSuccess
		it.ArtifactPath = m.result.Artifact.Path
		c.commit(it, zerolog.InfoLevel, "installed")
		c.emit(telemetry.InstallSuccess, it, "")
	default:
		it.FailureMessage = m.err.Error()
		it.FailureCode = ErrorCode(m.err)
		c.emit(telemetry.InstallFailed, it, it.FailureMessage)
		if it.Policy.retries(it.Attempts) {
			it.Stage = StageQueued
			c.commitErr(it, zerolog.WarnLevel, fmt.Sprintf("attempt %d failed, retrying: %s", it.Attempts, it.FailureMessage), m.err)
			break
		}
		it.Stage = StageFailed
		c.commitErr(it, zerolog.ErrorLevel, fmt.Sprintf("failed after %d attempts: %s", it.Attempts, it.FailureMessage), m.err)
		if it.Policy.Failure == StopOnFailure {
			c.halt(it)
		}
	}
	c.schedule()
}

func (c *Controller) halt(it *Item) {
	c.running = false
	c.halted = true
	c.persist()
	c.appendLog(it, zerolog.WarnLevel, "run halted on failure")
	c.notify(Event{Message: "run halted"})
}

func (c *Controller) handleProgress(p progressMsg) {
	it := c.find(p.id)
	if it == nil || c.active != p.id {
		return
	}
	it.BytesDone, it.BytesTotal = p.done, p.total
	c.notify(c.event(it, ""))
}

func (c *Controller) restore() {
	var snap Snapshot
	ok, err := c.store.Get(state.KeyQueue, &snap)
	if err != nil {
		c.log.Error().Err(err).Msg("load queue state failed, starting empty")
		return
	}
	if !ok {
		return
	}
	c.running = snap.Running
	c.halted = snap.Halted
	var exhausted *Item
	for _, it := range snap.Items {
		it := it
		c.items = append(c.items, &it)
		if !it.Stage.InFlight() {
			continue
		}
		p := it.Policy
		if p.Failure == "" {
			p = c.policy
		}
		if p.retries(it.Attempts) {
			it.Stage = StageQueued
			c.appendLog(&it, zerolog.WarnLevel, "interrupted attempt reset to queued")
			continue
		}
		it.Stage = StageFailed
		it.FailureMessage = errInterrupted.Error()
		it.FailureCode = CodeInterrupted
		it.UpdatedAt = c.now()
		c.writeLog(&it, zerolog.ErrorLevel, fmt.Sprintf("failed after %d attempts: %s", it.Attempts, it.FailureMessage), errInterrupted)
		c.emit(telemetry.InstallFailed, &it, it.FailureMessage)
		if p.Failure == StopOnFailure {
			exhausted = &it
		}
	}
	c.persist()
	if exhausted != nil && c.running {
		c.halt(exhausted)
	}
	c.log.Info().Int("items", len(c.items)).Bool("running", c.running).Msg("queue restored")
}

func (c *Controller) find(id string) *Item {
	for _, it := range c.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// findLive returns the item for a pair that has not succeeded.
func (c *Controller) findLive(pkg string, versionCode int64) *Item {
	for _, it := range c.items {
		if it.PackageName == pkg && it.VersionCode == versionCode && it.Stage != StageSuccess {
			return it
		}
	}
	return nil
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Items:     make([]Item, 0, len(c.items)),
		ActiveID:  c.active,
		Running:   c.running,
		Halted:    c.halted,
		Policy:    c.policy,
		UpdatedAt: c.now(),
	}
	for _, it := range c.items {
		s.Items = append(s.Items, it.clone())
	}
	return s
}

// commit persists the queue, logs the transition and notifies observers.
func (c *Controller) commit(it *Item, level zerolog.Level, msg string) {
	c.commitErr(it, level, msg, nil)
}

// commitErr is commit for a failed attempt; the log record carries the error class.
func (c *Controller) commitErr(it *Item, level zerolog.Level, msg string, err error) {
	it.UpdatedAt = c.now()
	c.persist()
	c.writeLog(it, level, msg, err)
	c.notify(c.event(it, msg))
}

func (c *Controller) persist() {
	if err := c.store.Put(state.KeyQueue, c.snapshot()); err != nil {
		c.log.Error().Err(err).Msg("persist queue state failed")
	}
}

func (c *Controller) appendLog(it *Item, level zerolog.Level, msg string) {
	c.writeLog(it, level, msg, nil)
}

func (c *Controller) writeLog(it *Item, level zerolog.Level, msg string, err error) {
	rec := db.LogRecord{At: c.now(), Level: level.String(), Message: msg}
	ev := c.log.WithLevel(level)
	if err != nil {
		rec.Code = ErrorCode(err)
		rec.Metadata = errorMetadata(err)
		ev = ev.Str("code", rec.Code)
	}
	if it != nil {
		rec.ItemID = it.ID
		rec.PackageName = it.PackageName
		rec.VersionCode = it.VersionCode
		rec.Stage = string(it.Stage)
		rec.Attempts = it.Attempts
		ev = ev.Str("item", it.ID).Str("package", it.PackageName).Int64("version", it.VersionCode).Str("stage", string(it.Stage))
	}
	ev.Msg(msg)
	if err := c.store.AppendLog(rec); err != nil {
		c.log.Error().Err(err).Msg("append queue log failed")
	}
}

func (c *Controller) event(it *Item, msg string) Event {
	return Event{Item: it.clone(), ActiveID: c.active, Running: c.running, Halted: c.halted, Message: msg}
}

func (c *Controller) notify(ev Event) {
	ev.ActiveID, ev.Running, ev.Halted = c.active, c.running, c.halted
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.log.Warn().Int("subscriber", id).Msg("observer lagging, event dropped")
		}
	}
}

// emit sends a telemetry event; failures are logged and otherwise ignored.
func (c *Controller) emit(name string, it *Item, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.telemetryTimeout)
	defer cancel()
	ev := telemetry.Event{Name: name, ItemID: it.ID, PackageName: it.PackageName, VersionCode: it.VersionCode, Detail: detail, At: c.now()}
	if err := c.sink.Emit(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("event", name).Str("package", it.PackageName).Msg("telemetry emit failed")
	}
}
