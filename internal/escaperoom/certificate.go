package escaperoom

import "time"

type Rating string

const (
	RatingMasterDetective Rating = "Master Detective"
	RatingSeniorInspector Rating = "Senior Inspector"
	RatingInvestigator    Rating = "Investigator"
	RatingApprentice      Rating = "Apprentice"
)

// Certificate is the read-only snapshot the certificate image is drawn from.
type Certificate struct {
	TeamName        string     `json:"teamName"`
	Theme           Theme      `json:"theme"`
	ThemeName       string     `json:"themeName"`
	Difficulty      Difficulty `json:"difficulty"`
	StagesCompleted int        `json:"stagesCompleted"`
	TotalStages     int        `json:"totalStages"`
	TimeTaken       int        `json:"timeTaken"`
	HintsUsed       int        `json:"hintsUsed"`
	AnswersRevealed int        `json:"answersRevealed"`
	CompletionDate  time.Time  `json:"completionDate"`
	Score           int        `json:"score"`
	Rating          Rating     `json:"rating"`
}

// NewCertificate snapshots a completed session. TimeTaken is wall time from
// start to completion in seconds.
func NewCertificate(s *Session) (Certificate, error) {
	if !s.IsCompleted() || s.CompletionTime == nil {
		return Certificate{}, ErrNotCompleted
	}
	c := Certificate{
		TeamName:        s.TeamName,
		Theme:           s.Theme,
		Difficulty:      s.Difficulty,
		StagesCompleted: len(s.StagesSolved()),
		TotalStages:     s.TotalStages,
		TimeTaken:       max(int(s.CompletionTime.Sub(s.StartTime).Seconds()), 0),
		HintsUsed:       s.HintsUsed,
		AnswersRevealed: s.AnswersRevealed.Size(),
		CompletionDate:  *s.CompletionTime,
	}
	if info, ok := Builtin().Theme(s.Theme); ok {
		c.ThemeName = info.Name
	}
	c.Score, c.Rating = RatePerformance(c)
	return c, nil
}

// RatePerformance scores out of 100. Clean solves earn the points, reveals
// cost more than hints, and a hard game earns a bonus.
func RatePerformance(c Certificate) (int, Rating) {
	if c.TotalStages <= 0 {
		return 0, RatingApprentice
	}
	clean := max(c.StagesCompleted-c.AnswersRevealed, 0)
	score := clean * 100 / c.TotalStages
	score -= c.AnswersRevealed * 5
	score -= c.HintsUsed * 3
	switch c.Difficulty {
	case DifficultyHard:
		score += 10
	case DifficultyEasy:
		score -= 5
	}
	score = clamp(score, 0, 100)

	switch {
	case score >= 90:
		return score, RatingMasterDetective
	case score >= 70:
		return score, RatingSeniorInspector
	case score >= 40:
		return score, RatingInvestigator
	}
	return score, RatingApprentice
}
