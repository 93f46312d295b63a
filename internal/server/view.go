package server

import (
	"maps"
	"time"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/locale"
	"github.com/playperu/escaperoom/internal/storage"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	ID              string                `json:"id"`
	TeamID          string                `json:"teamId,omitempty"`
	TeamName        string                `json:"teamName"`
	Theme           escaperoom.Theme      `json:"theme"`
	ThemeName       string                `json:"themeName"`
	Difficulty      escaperoom.Difficulty `json:"difficulty"`
	Status          escaperoom.Status     `json:"status"`
	CurrentStage    int                   `json:"currentStage"`
	TotalStages     int                   `json:"totalStages"`
	TimeRemaining   int                   `json:"timeRemaining"`
	HintsUsed       int                   `json:"hintsUsed"`
	HintsAvailable  int                   `json:"hintsAvailable"`
	HintBudget      int                   `json:"hintBudget"`
	Progress        map[int]int           `json:"progress"`
	StagesSolved    []int                 `json:"stagesSolved"`
	AnswersRevealed []int                 `json:"answersRevealed"`
	StartTime       time.Time             `json:"startTime"`
	CompletionTime  *time.Time            `json:"completionTime,omitempty"`
	EndTime         *time.Time            `json:"endTime,omitempty"`
	Sync            storage.SyncStatus    `json:"sync,omitempty"`
}

func sessionView(s *escaperoom.Session, sync storage.SyncStatus) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID,
		TeamID:          s.TeamID,
		TeamName:        s.TeamName,
		Theme:           s.Theme,
		Difficulty:      s.Difficulty,
		Status:          s.Status,
		CurrentStage:    s.CurrentStage,
		TotalStages:     s.TotalStages,
		TimeRemaining:   s.TimeRemaining,
		HintsUsed:       s.HintsUsed,
		HintsAvailable:  s.HintsAvailable,
		HintBudget:      s.HintBudget,
		Progress:        maps.Clone(s.Progress),
		StagesSolved:    s.StagesSolved(),
		AnswersRevealed: s.RevealedStages(),
		StartTime:       s.StartTime,
		CompletionTime:  s.CompletionTime,
		EndTime:         s.EndTime,
		Sync:            sync,
	}
	if info, ok := escaperoom.Builtin().Theme(s.Theme); ok {
		resp.ThemeName = info.Name
	}
	return resp
}

type AnswerResult struct {
	StageNumber  int    `json:"stageNumber"`
	IsCorrect    bool   `json:"isCorrect"`
	Revealed     bool   `json:"revealed"`
	GameComplete bool   `json:"gameComplete"`
	Solution     string `json:"solution,omitempty"`
}

// ResultResponse answers every player action. Advisory carries the inline
// message for actions that changed nothing.
type ResultResponse struct {
	Session  SessionResponse `json:"session"`
	Changed  bool            `json:"changed"`
	Advisory string          `json:"advisory,omitempty"`
	Answer   *AnswerResult   `json:"answer,omitempty"`
	Hint     string          `json:"hint,omitempty"`
}

func resultView(res game.Result, tr *locale.Translator) ResultResponse {
	resp := ResultResponse{
		Session:  sessionView(res.Session, res.Sync),
		Changed:  res.Changed,
		Advisory: tr.Text(res.Advisory),
		Hint:     res.Hint,
	}
	if a := res.Answer; a != nil {
		resp.Answer = &AnswerResult{
			StageNumber:  a.Stage,
			IsCorrect:    a.Correct,
			Revealed:     a.Revealed,
			GameComplete: a.Completed,
		}
	}
	return resp
}

// StageResponse is the player's view of one stage. Locked stages carry only
// their number and title.
type StageResponse struct {
	StageNumber int                   `json:"stageNumber"`
	Title       string                `json:"title"`
	Unlocked    bool                  `json:"unlocked"`
	Description string                `json:"description,omitempty"`
	Backstory   string                `json:"backstory,omitempty"`
	Type        escaperoom.PuzzleType `json:"type,omitempty"`
	Evidence    []escaperoom.Evidence `json:"evidence,omitempty"`
	Options     []escaperoom.Option   `json:"options,omitempty"`
	Progress    int                   `json:"progress"`
	Solved      bool                  `json:"solved"`
	Revealed    bool                  `json:"revealed"`
	HintsUsed   int                   `json:"hintsUsed"`
	HintsTotal  int                   `json:"hintsTotal"`
	Solution    string                `json:"solution,omitempty"`
	Advisory    string                `json:"advisory,omitempty"`
}

func stageView(p escaperoom.Puzzle, s *escaperoom.Session, unlocked bool, tr *locale.Translator) StageResponse {
	resp := StageResponse{
		StageNumber: p.Stage,
		Title:       p.Title,
		Unlocked:    unlocked,
	}
	if !unlocked {
		resp.Advisory = tr.Text(escaperoom.AdvisoryStageLocked)
		return resp
	}
	resp.Description = p.Description
	resp.Backstory = p.Backstory
	resp.Type = p.Type()
	resp.Evidence = p.Evidence
	resp.Options = p.Options()
	resp.Progress = s.Progress[p.Stage]
	resp.Solved = s.IsSolved(p.Stage)
	resp.Revealed = s.IsRevealed(p.Stage)
	resp.HintsUsed = s.StageHints[p.Stage]
	resp.HintsTotal = len(p.Hints)
	if resp.Solved {
		resp.Solution = p.Solution()
	}
	return resp
}

// SessionSummary is one row of the admin session list.
type SessionSummary struct {
	TeamID         string             `json:"teamId"`
	SessionID      string             `json:"sessionId"`
	TeamName       string             `json:"teamName"`
	Theme          string             `json:"theme"`
	Difficulty     string             `json:"difficulty"`
	Status         escaperoom.Status  `json:"status"`
	CurrentStage   int                `json:"currentStage"`
	TotalStages    int                `json:"totalStages"`
	StagesSolved   int                `json:"stagesSolved"`
	TimeRemaining  int                `json:"timeRemaining"`
	HintsUsed      int                `json:"hintsUsed"`
	HintsAvailable int                `json:"hintsAvailable"`
	Live           bool               `json:"live"`
	UpdatedAt      string             `json:"updatedAt"`
	Sync           storage.SyncStatus `json:"sync,omitempty"`
	Answers        []int              `json:"answersRevealed"`
}

func summaryView(rec storage.SessionRecord) SessionSummary {
	var solved int
	for _, st := range rec.Stages {
		if st.IsCompleted {
			solved++
		}
	}
	return SessionSummary{
		TeamID:         rec.Key(),
		SessionID:      rec.SessionID,
		TeamName:       rec.TeamName,
		Theme:          rec.Theme,
		Difficulty:     rec.Difficulty,
		Status:         rec.Status(),
		CurrentStage:   rec.CurrentStage,
		TotalStages:    rec.TotalStages,
		StagesSolved:   solved,
		TimeRemaining:  rec.TimeRemaining,
		HintsUsed:      rec.HintsUsed,
		HintsAvailable: rec.HintsAvailable,
		UpdatedAt:      rec.UpdatedAt,
		Answers:        rec.AnswersRevealed,
	}
}

// overlayLive replaces the stored counters with the running controller's,
// which may be a few ticks ahead of the last write.
func overlayLive(sum SessionSummary, res game.Result) SessionSummary {
	s := res.Session
	sum.Live = true
	sum.Status = s.Status
	sum.Difficulty = string(s.Difficulty)
	sum.CurrentStage = s.CurrentStage
	sum.StagesSolved = len(s.StagesSolved())
	sum.TimeRemaining = s.TimeRemaining
	sum.HintsUsed = s.HintsUsed
	sum.HintsAvailable = s.HintsAvailable
	sum.Answers = s.RevealedStages()
	sum.Sync = res.Sync
	return sum
}

type MessageResponse struct {
	ID        string             `json:"id"`
	Type      storage.ActionType `json:"type"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

func messageView(a storage.AdminAction) MessageResponse {
	return MessageResponse{ID: a.ID, Type: a.Type, Message: a.Message, Timestamp: a.Timestamp}
}
