package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/escaperoom/internal/clock"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/storage"
)

const persistTimeout = 5 * time.Second

type Options struct {
	TickInterval     time.Duration
	SyncEveryTicks   int
	AutoAdvanceDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.SyncEveryTicks <= 0 {
		o.SyncEveryTicks = 1
	}
	if o.AutoAdvanceDelay < 0 {
		o.AutoAdvanceDelay = 0
	}
	return o
}

// Result is what every controller operation hands back: the session after
// the operation, where its mirror write landed, and an advisory when the
// operation was a no-op.
type Result struct {
	Session  *escaperoom.Session
	Sync     storage.SyncStatus
	Changed  bool
	Advisory string
	Answer   *escaperoom.AnswerOutcome
	Hint     string
}

// Controller drives one live session: it serializes operations, runs the
// countdown and mirrors every change through the repository. Admin changes
// made to the persisted copy are adopted on the controller's own sync cycle.
type Controller struct {
	mu      sync.Mutex
	sess    *escaperoom.Session
	last    storage.SessionRecord
	status  storage.SyncStatus
	ticks   int
	// lastTick is when the countdown last moved. Ticks the scheduler
	// dropped are caught up from it.
	lastTick time.Time
	stopped  bool

	finished bool
	released bool

	stopTick    func()
	stopAdvance func()

	repo    *storage.Repository
	content *ContentService
	sched   clock.Scheduler
	pub     Publisher
	logger  *slog.Logger
	opts    Options
	onDone  func(id string)
}

type controllerDeps struct {
	repo    *storage.Repository
	content *ContentService
	sched   clock.Scheduler
	pub     Publisher
	logger  *slog.Logger
	opts    Options
	onDone  func(id string)
}

func newController(s *escaperoom.Session, last storage.SessionRecord, d controllerDeps) *Controller {
	return &Controller{
		sess:    s,
		last:    last,
		repo:    d.repo,
		content: d.content,
		sched:   d.sched,
		pub:     d.pub,
		logger:  d.logger.With("session_id", s.ID),
		opts:    d.opts,
		onDone:  d.onDone,
	}
}

func (c *Controller) ID() string { return c.sess.ID }

// start begins the countdown if the session is still running.
func (c *Controller) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.IsActive() && c.stopTick == nil {
		c.lastTick = c.sched.Now()
		c.stopTick = c.sched.Every(c.opts.TickInterval, c.onTick)
	}
}

// Stop cancels the countdown and any pending auto-advance. In-flight writes
// are not waited for.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.stopTimersLocked()
}

func (c *Controller) stopTimersLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	if c.stopAdvance != nil {
		c.stopAdvance()
		c.stopAdvance = nil
	}
}

// Ticking reports whether the countdown is scheduled.
func (c *Controller) Ticking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTick != nil
}

func (c *Controller) Snapshot() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultLocked()
}

func (c *Controller) resultLocked() Result {
	return Result{Session: c.sess.Clone(), Sync: c.status}
}

// Puzzle returns the effective puzzle for stage and whether the player may
// open it.
func (c *Controller) Puzzle(stage int) (escaperoom.Puzzle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.Resolve(c.sess.Theme, stage), c.sess.IsStageUnlocked(stage)
}

func (c *Controller) SubmitAnswer(ctx context.Context, stage int, raw string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.content.Resolve(c.sess.Theme, stage)
	out := c.sess.SubmitAnswer(p, stage, raw, c.sched.Now())
	return c.afterAnswerLocked(ctx, out)
}

// RevealAnswer solves stage without an answer. It is never gated.
func (c *Controller) RevealAnswer(ctx context.Context, stage int) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.sess.RevealAnswer(stage, c.sched.Now())
	return c.afterAnswerLocked(ctx, out)
}

func (c *Controller) afterAnswerLocked(ctx context.Context, out escaperoom.AnswerOutcome) Result {
	if !out.Correct {
		res := c.resultLocked()
		res.Advisory = out.Advisory
		res.Answer = &out
		return res
	}

	c.publishLocked(Event{Type: EventStageSolved, StageNumber: out.Stage})
	if out.Completed {
		c.finishLocked(EventSessionCompleted)
	} else if out.Advance {
		c.scheduleAdvanceLocked(ctx, out.Stage)
	}

	c.persistLocked(ctx)
	res := c.resultLocked()
	res.Changed = true
	res.Answer = &out
	return res
}

func (c *Controller) scheduleAdvanceLocked(ctx context.Context, stage int) {
	if c.opts.AutoAdvanceDelay == 0 {
		if c.sess.AdvanceFrom(stage) {
			c.publishLocked(Event{Type: EventStageAdvanced, StageNumber: stage})
		}
		return
	}
	if c.stopAdvance != nil {
		c.stopAdvance()
	}
	c.stopAdvance = c.sched.After(c.opts.AutoAdvanceDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopAdvance = nil
		if c.stopped || !c.sess.AdvanceFrom(stage) {
			return
		}
		c.persistLocked(context.Background())
		c.publishLocked(Event{Type: EventStageAdvanced, StageNumber: stage})
	})
}

func (c *Controller) UpdateProgress(ctx context.Context, stage, pct int) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sess.UpdateProgress(stage, pct) {
		return c.resultLocked()
	}
	c.persistLocked(ctx)
	res := c.resultLocked()
	res.Changed = true
	return res
}

// UseHint spends a hint on the current stage and returns its text. Once the
// stage's hints run out the last one is repeated.
func (c *Controller) UseHint(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.IsTerminal() {
		res := c.resultLocked()
		res.Advisory = escaperoom.AdvisorySessionOver
		return res
	}
	idx, ok := c.sess.UseHint()
	if !ok {
		res := c.resultLocked()
		res.Advisory = escaperoom.AdvisoryNoHints
		return res
	}

	p := c.content.Resolve(c.sess.Theme, c.sess.CurrentStage)
	text, found := p.Hint(idx)
	var advisory string
	if !found {
		advisory = escaperoom.AdvisoryNoMoreHints
		if n := len(p.Hints); n > 0 {
			text = p.Hints[n-1]
		}
	}

	c.publishLocked(Event{Type: EventHintUsed, StageNumber: c.sess.CurrentStage})
	c.persistLocked(ctx)
	res := c.resultLocked()
	res.Changed = true
	res.Hint = text
	res.Advisory = advisory
	return res
}

type NavAction string

const (
	NavNext     NavAction = "next"
	NavPrevious NavAction = "previous"
	NavGoTo     NavAction = "goto"
)

// Navigate moves the player. Forward moves honor gating; going back is
// always allowed.
func (c *Controller) Navigate(ctx context.Context, action NavAction, stage int) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.IsTerminal() {
		res := c.resultLocked()
		res.Advisory = escaperoom.AdvisorySessionOver
		return res
	}

	var target int
	switch action {
	case NavNext:
		target = c.sess.CurrentStage + 1
	case NavPrevious:
		target = c.sess.CurrentStage - 1
	default:
		target = stage
	}
	if target > c.sess.CurrentStage && !c.sess.IsStageUnlocked(target) {
		res := c.resultLocked()
		res.Advisory = escaperoom.AdvisoryStageLocked
		return res
	}
	if !c.sess.GoToStage(target) {
		return c.resultLocked()
	}
	c.persistLocked(ctx)
	res := c.resultLocked()
	res.Changed = true
	return res
}

// End abandons the game.
func (c *Controller) End(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sess.End(c.sched.Now()) {
		res := c.resultLocked()
		res.Advisory = escaperoom.AdvisorySessionOver
		return res
	}
	c.finishLocked(EventSessionEnded)
	c.persistLocked(ctx)
	res := c.resultLocked()
	res.Changed = true
	return res
}

// Sync runs one sync cycle outside the countdown.
func (c *Controller) Sync(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistLocked(ctx)
	return c.resultLocked()
}

func (c *Controller) onTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || !c.sess.IsActive() {
		return
	}
	now := c.sched.Now()
	n := c.elapsedTicksLocked(now)
	if n == 0 {
		return
	}

	// The countdown holds the lock, so the primary store only gets part of
	// a tick. The repository still writes the fallback when this runs out.
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.TickInterval/2)
	defer cancel()

	every := c.opts.SyncEveryTicks
	due := (c.ticks+n)/every > c.ticks/every
	if due || c.sess.TimeRemaining <= n {
		// An extension that landed just before expiry still counts.
		c.adoptLocked(ctx)
	}

	var out escaperoom.TickOutcome
	for range n {
		out = c.sess.Tick(now)
		if !out.Changed {
			return
		}
		c.ticks++
		if out.Expired {
			break
		}
	}

	if out.Expired {
		c.logger.Info("session timed out", "stage", c.sess.CurrentStage)
		c.finishLocked(EventTimeExpired)
		c.saveLocked(ctx)
		return
	}
	if due {
		c.saveLocked(ctx)
		c.publishLocked(Event{Type: EventState})
	}
}

// elapsedTicksLocked returns how many tick intervals passed since the
// countdown last moved, rounding to the nearest one.
func (c *Controller) elapsedTicksLocked(now time.Time) int {
	iv := c.opts.TickInterval
	n := int((now.Sub(c.lastTick) + iv/2) / iv)
	if n < 1 {
		return 0
	}
	c.lastTick = c.lastTick.Add(time.Duration(n) * iv)
	return n
}

func (c *Controller) finishLocked(ev EventType) {
	c.stopTimersLocked()
	c.publishLocked(Event{Type: ev})
	c.finished = true
}

// persistLocked runs a full sync cycle: adopt out-of-band changes, then write.
func (c *Controller) persistLocked(ctx context.Context) storage.SyncStatus {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	c.adoptLocked(ctx)
	return c.saveLocked(ctx)
}

func (c *Controller) saveLocked(ctx context.Context) storage.SyncStatus {
	rec := storage.FromSession(c.sess)
	rec.Revision = c.last.Revision
	saved, status := c.repo.SaveSession(ctx, rec)
	if saved.ID != "" {
		c.sess.TeamID = saved.ID
	}
	c.last = saved
	c.status = status
	if c.finished && !c.released && c.onDone != nil {
		// Release only once the terminal state is stored, so a reload
		// cannot resurrect the running game.
		c.released = true
		c.onDone(c.sess.ID)
	}
	return status
}

// adoptLocked applies changes an admin made to the persisted copy since this
// controller last wrote it. Only increases in time and hint budget and a
// changed difficulty are taken; everything else stays player-owned.
func (c *Controller) adoptLocked(ctx context.Context) {
	persisted, src := c.repo.LoadSession(ctx, c.sess.ID)
	if src == storage.SourceDefault || persisted.Revision <= c.last.Revision {
		return
	}

	var changed bool
	if d := persisted.TimeRemaining - c.last.TimeRemaining; d > 0 {
		changed = c.sess.ExtendTime(d) || changed
	}
	if d := persisted.HintBudget - c.last.HintBudget; d > 0 {
		changed = c.sess.GrantHints(d) || changed
	}
	if persisted.Difficulty != c.last.Difficulty {
		if d, err := escaperoom.ParseDifficulty(persisted.Difficulty); err == nil {
			changed = c.sess.SetDifficulty(d) || changed
		}
	}
	if c.sess.TeamID == "" && persisted.ID != "" {
		c.sess.TeamID = persisted.ID
	}
	// The next adopt measures from what was just taken in, whether or not a
	// save follows.
	c.last.Revision = persisted.Revision
	c.last.TimeRemaining = persisted.TimeRemaining
	c.last.HintBudget = persisted.HintBudget
	c.last.Difficulty = persisted.Difficulty

	if changed {
		c.logger.Info("adopted admin changes",
			"time_remaining", c.sess.TimeRemaining,
			"hints_available", c.sess.HintsAvailable,
			"difficulty", c.sess.Difficulty)
		c.publishLocked(Event{Type: EventAdminUpdate})
	}
}

func (c *Controller) publishLocked(ev Event) {
	ev.SessionID = c.sess.ID
	ev.CurrentStage = c.sess.CurrentStage
	ev.TimeRemaining = c.sess.TimeRemaining
	c.pub.Publish(c.sess.ID, ev)
}
