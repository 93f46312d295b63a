// Package escaperoom defines the game's core: the session state machine,
// puzzle content and its resolution, and the completion certificate. It does
// no I/O; persistence and scheduling live in the storage and game packages.
package escaperoom

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zyedidia/generic/mapset"
)

// TotalStages is fixed for every theme.
const TotalStages = 6

const MaxTeamNameLength = 50

type Status string

const (
	StatusUninitialized Status = ""
	StatusActive        Status = "active"
	StatusCompleted     Status = "completed"
	StatusEnded         Status = "ended"
)

// Config is what the setup screen collects before a game starts.
type Config struct {
	Theme      Theme
	Difficulty Difficulty
	TeamName   string
}

// Session is one team's run through a theme. A Session is not safe for
// concurrent use; the game controller serializes access.
//
// Invariants maintained by every method:
//   - 1 <= CurrentStage <= TotalStages
//   - HintsUsed + HintsAvailable == HintBudget
//   - Progress[n] == 100 exactly for solved stages
//   - Completed and Ended are absorbing
type Session struct {
	ID       string
	TeamID   string
	Theme    Theme
	TeamName string

	Difficulty Difficulty

	CurrentStage int
	TotalStages  int

	TimeRemaining int

	HintsUsed      int
	HintsAvailable int
	HintBudget     int

	Progress        map[int]int
	StageHints      map[int]int
	AnswersRevealed mapset.Set[int]

	Status         Status
	StartTime      time.Time
	CompletionTime *time.Time
	EndTime        *time.Time
}

// NewSession validates cfg and returns an active session on stage 1 with the
// difficulty's time and hint budget. Unknown themes fall back to DefaultTheme.
func NewSession(id string, cfg Config, now time.Time) (*Session, error) {
	name := strings.TrimSpace(cfg.TeamName)
	if name == "" || utf8.RuneCountInString(name) > MaxTeamNameLength {
		return nil, ErrInvalidTeamName
	}
	if !cfg.Difficulty.Valid() {
		return nil, ErrUnknownDifficulty
	}
	theme := cfg.Theme
	if !Builtin().Has(theme) {
		theme = DefaultTheme
	}

	s := newBlank(id)
	s.Theme = theme
	s.TeamName = name
	s.Difficulty = cfg.Difficulty
	s.TimeRemaining = cfg.Difficulty.InitialTime()
	s.HintsAvailable = cfg.Difficulty.InitialHints()
	s.HintBudget = s.HintsAvailable
	s.Status = StatusActive
	s.StartTime = now.UTC()
	return s, nil
}

// DemoSession is synthesized when a well-formed session id cannot be found in
// any store, so a resume link never dead-ends.
func DemoSession(id string, now time.Time) *Session {
	s, _ := NewSession(id, Config{
		Theme:      DefaultTheme,
		Difficulty: DifficultyMedium,
		TeamName:   "Demo Team",
	}, now)
	return s
}

func newBlank(id string) *Session {
	return &Session{
		ID:              id,
		CurrentStage:    1,
		TotalStages:     TotalStages,
		Progress:        make(map[int]int),
		StageHints:      make(map[int]int),
		AnswersRevealed: mapset.New[int](),
	}
}

// Restore rebuilds a session from persisted fields, repairing anything that
// would break an invariant (out of range stage, negative counters).
func Restore(s Session) *Session {
	out := newBlank(s.ID)
	out.TeamID = s.TeamID
	out.Theme = s.Theme
	if !Builtin().Has(out.Theme) {
		out.Theme = DefaultTheme
	}
	out.TeamName = s.TeamName
	out.Difficulty = s.Difficulty
	if !out.Difficulty.Valid() {
		out.Difficulty = DifficultyMedium
	}
	out.CurrentStage = clamp(s.CurrentStage, 1, TotalStages)
	out.TimeRemaining = max(s.TimeRemaining, 0)
	out.HintsUsed = max(s.HintsUsed, 0)
	out.HintsAvailable = max(s.HintsAvailable, 0)
	out.HintBudget = out.HintsUsed + out.HintsAvailable
	for stage, pct := range s.Progress {
		if stage >= 1 && stage <= TotalStages {
			out.Progress[stage] = clamp(pct, 0, 100)
		}
	}
	for stage, n := range s.StageHints {
		if stage >= 1 && stage <= TotalStages && n > 0 {
			out.StageHints[stage] = n
		}
	}
	if s.AnswersRevealed.Size() > 0 {
		s.AnswersRevealed.Each(func(stage int) {
			if out.Progress[stage] == 100 {
				out.AnswersRevealed.Put(stage)
			}
		})
	}
	out.Status = s.Status
	switch out.Status {
	case StatusActive, StatusCompleted, StatusEnded:
	default:
		out.Status = StatusActive
	}
	out.StartTime = s.StartTime
	out.CompletionTime = s.CompletionTime
	out.EndTime = s.EndTime
	if out.Status == StatusCompleted && out.CompletionTime == nil {
		t := out.StartTime
		out.CompletionTime = &t
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	c.Progress = make(map[int]int, len(s.Progress))
	for k, v := range s.Progress {
		c.Progress[k] = v
	}
	c.StageHints = make(map[int]int, len(s.StageHints))
	for k, v := range s.StageHints {
		c.StageHints[k] = v
	}
	c.AnswersRevealed = mapset.New[int]()
	s.AnswersRevealed.Each(func(stage int) { c.AnswersRevealed.Put(stage) })
	if s.CompletionTime != nil {
		t := *s.CompletionTime
		c.CompletionTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

func (s *Session) IsActive() bool    { return s.Status == StatusActive }
func (s *Session) IsCompleted() bool { return s.Status == StatusCompleted }
func (s *Session) IsEnded() bool     { return s.Status == StatusEnded }

// IsTerminal reports whether the session reached an absorbing state.
func (s *Session) IsTerminal() bool { return s.IsCompleted() || s.IsEnded() }

func (s *Session) IsSolved(stage int) bool { return s.Progress[stage] == 100 }

func (s *Session) IsRevealed(stage int) bool { return s.AnswersRevealed.Has(stage) }

// StagesSolved returns solved stage numbers in ascending order.
func (s *Session) StagesSolved() []int {
	var out []int
	for stage, pct := range s.Progress {
		if pct == 100 {
			out = append(out, stage)
		}
	}
	slices.Sort(out)
	return out
}

// RevealedStages returns revealed stage numbers in ascending order.
func (s *Session) RevealedStages() []int {
	var out []int
	s.AnswersRevealed.Each(func(stage int) { out = append(out, stage) })
	slices.Sort(out)
	return out
}

// IsStageUnlocked is the gating policy: stage 1 is always open, stage n only
// once n-1 is solved. Navigation does not enforce it; callers must.
func (s *Session) IsStageUnlocked(stage int) bool {
	if !s.inRange(stage) {
		return false
	}
	return stage == 1 || s.IsSolved(stage-1)
}

func (s *Session) inRange(stage int) bool {
	return stage >= 1 && stage <= s.TotalStages
}

// AnswerOutcome describes the effect of SubmitAnswer or RevealAnswer.
type AnswerOutcome struct {
	Stage     int
	Correct   bool
	Revealed  bool
	Completed bool
	// Advance asks the caller to move past Stage once the success state has
	// been shown (see AdvanceFrom).
	Advance  bool
	Advisory string
}

// SubmitAnswer checks raw against the puzzle for stage. A wrong answer
// changes nothing.
func (s *Session) SubmitAnswer(p Puzzle, stage int, raw string, now time.Time) AnswerOutcome {
	out := AnswerOutcome{Stage: stage}
	switch {
	case !s.IsActive():
		out.Advisory = AdvisorySessionOver
	case !s.inRange(stage):
		out.Advisory = AdvisoryUnknownStage
	case !s.IsStageUnlocked(stage):
		out.Advisory = AdvisoryStageLocked
	case s.IsSolved(stage):
		out.Advisory = AdvisoryAlreadySolved
	case NormalizeAnswer(raw) == "":
		out.Advisory = AdvisoryEmptyAnswer
	case !p.Matches(raw):
		out.Advisory = AdvisoryWrongAnswer
	default:
		return s.solve(stage, now)
	}
	return out
}

// RevealAnswer solves stage without an answer and remembers that it did.
// It ignores gating and is idempotent.
func (s *Session) RevealAnswer(stage int, now time.Time) AnswerOutcome {
	out := AnswerOutcome{Stage: stage}
	switch {
	case !s.IsActive():
		out.Advisory = AdvisorySessionOver
		return out
	case !s.inRange(stage):
		out.Advisory = AdvisoryUnknownStage
		return out
	case s.IsSolved(stage):
		out.Revealed = s.IsRevealed(stage)
		out.Advisory = AdvisoryAlreadySolved
		return out
	}
	s.AnswersRevealed.Put(stage)
	out = s.solve(stage, now)
	out.Revealed = true
	return out
}

func (s *Session) solve(stage int, now time.Time) AnswerOutcome {
	s.Progress[stage] = 100
	out := AnswerOutcome{Stage: stage, Correct: true}
	if stage == s.TotalStages {
		s.complete(now)
		out.Completed = true
		return out
	}
	out.Advance = stage == s.CurrentStage
	return out
}

// AdvanceFrom performs the delayed auto-advance after stage was solved. It
// does nothing if the player has already moved or the game is over.
func (s *Session) AdvanceFrom(stage int) bool {
	if !s.IsActive() || s.CurrentStage != stage || !s.IsSolved(stage) {
		return false
	}
	return s.AdvanceStage()
}

// UpdateProgress records partial progress on an unlocked, unsolved stage.
// Progress never decreases and stops at 99; only a solve reaches 100.
func (s *Session) UpdateProgress(stage, pct int) bool {
	if !s.IsActive() || !s.IsStageUnlocked(stage) || s.IsSolved(stage) {
		return false
	}
	pct = clamp(pct, 0, 99)
	if pct <= s.Progress[stage] {
		return false
	}
	s.Progress[stage] = pct
	return true
}

// UseHint spends one hint on the current stage and returns the index of the
// hint text it unlocks. It returns false when the budget is empty.
func (s *Session) UseHint() (int, bool) {
	if !s.IsActive() || s.HintsAvailable <= 0 {
		return 0, false
	}
	s.HintsAvailable--
	s.HintsUsed++
	s.StageHints[s.CurrentStage]++
	return s.StageHints[s.CurrentStage] - 1, true
}

// GoToStage moves to n clamped to the valid range.
func (s *Session) GoToStage(n int) bool {
	if !s.IsActive() {
		return false
	}
	n = clamp(n, 1, s.TotalStages)
	if n == s.CurrentStage {
		return false
	}
	s.CurrentStage = n
	return true
}

func (s *Session) AdvanceStage() bool { return s.GoToStage(s.CurrentStage + 1) }

func (s *Session) GoToNextStage() bool { return s.GoToStage(s.CurrentStage + 1) }

func (s *Session) GoToPreviousStage() bool { return s.GoToStage(s.CurrentStage - 1) }

// End abandons the game. Progress stays for reporting.
func (s *Session) End(now time.Time) bool {
	if !s.IsActive() {
		return false
	}
	s.Status = StatusEnded
	t := now.UTC()
	s.EndTime = &t
	return true
}

type TickOutcome struct {
	Changed bool
	Expired bool
}

// Tick counts down one second. Reaching zero completes the game whether or
// not stages remain.
func (s *Session) Tick(now time.Time) TickOutcome {
	if !s.IsActive() {
		return TickOutcome{}
	}
	if s.TimeRemaining > 0 {
		s.TimeRemaining--
	}
	if s.TimeRemaining == 0 {
		s.complete(now)
		return TickOutcome{Changed: true, Expired: true}
	}
	return TickOutcome{Changed: true}
}

func (s *Session) complete(now time.Time) {
	if !s.IsActive() {
		return
	}
	s.Status = StatusCompleted
	if s.CompletionTime == nil {
		t := now.UTC()
		s.CompletionTime = &t
	}
}

// ExtendTime adds seconds to the countdown of an active session.
func (s *Session) ExtendTime(seconds int) bool {
	if !s.IsActive() || seconds <= 0 {
		return false
	}
	s.TimeRemaining += seconds
	return true
}

// GrantHints raises the budget; the only way hints enter a session after it
// starts.
func (s *Session) GrantHints(n int) bool {
	if !s.IsActive() || n <= 0 {
		return false
	}
	s.HintsAvailable += n
	s.HintBudget += n
	return true
}

func (s *Session) SetDifficulty(d Difficulty) bool {
	if !s.IsActive() || !d.Valid() || d == s.Difficulty {
		return false
	}
	s.Difficulty = d
	return true
}

// AdjustDifficulty steps the difficulty one level. Moving easier grants the
// difference in hint budget between the two levels; moving harder grants
// nothing and takes nothing away.
func (s *Session) AdjustDifficulty(dir Direction) (granted int, changed bool) {
	prev := s.Difficulty
	next := prev.Step(dir)
	if !s.SetDifficulty(next) {
		return 0, false
	}
	if dir == DirectionEasier {
		granted = max(next.InitialHints()-prev.InitialHints(), 0)
		s.GrantHints(granted)
	}
	return granted, true
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
