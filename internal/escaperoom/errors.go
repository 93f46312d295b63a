package escaperoom

import "errors"

var (
	ErrInvalidTeamName   = errors.New("team name must be 1 to 50 characters")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrUnknownDirection  = errors.New("direction must be easier or harder")
	ErrInvalidContent    = errors.New("invalid custom content")
	ErrNotCompleted      = errors.New("session is not completed")
)

// Advisory messages are shown inline to the player when an operation is a
// no-op. They double as translation ids.
const (
	AdvisorySessionOver   = "This game is over."
	AdvisoryUnknownStage  = "That stage does not exist."
	AdvisoryStageLocked   = "Solve the previous stage to unlock this one."
	AdvisoryAlreadySolved = "This stage is already solved."
	AdvisoryWrongAnswer   = "That's not quite right. Take another look at the evidence."
	AdvisoryNoHints       = "No hints remaining."
	AdvisoryNoMoreHints   = "You have seen every hint for this stage."
	AdvisoryEmptyAnswer   = "Enter an answer first."
)
