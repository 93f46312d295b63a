package escaperoom

import (
	"fmt"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// difficultyOrder runs from easiest to hardest.
var difficultyOrder = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

type difficultySettings struct {
	seconds int
	hints   int
}

var difficultyTable = map[Difficulty]difficultySettings{
	DifficultyEasy:   {seconds: 90 * 60, hints: 5},
	DifficultyMedium: {seconds: 60 * 60, hints: 3},
	DifficultyHard:   {seconds: 45 * 60, hints: 1},
}

// ParseDifficulty accepts the canonical names plus "difficult" as an alias
// for hard.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard", "difficult":
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

func (d Difficulty) Valid() bool {
	_, ok := difficultyTable[d]
	return ok
}

// InitialTime is the countdown a new session starts with, in seconds.
func (d Difficulty) InitialTime() int { return difficultyTable[d].seconds }

// InitialHints is the hint budget a new session starts with.
func (d Difficulty) InitialHints() int { return difficultyTable[d].hints }

func (d Difficulty) rank() int {
	for i, o := range difficultyOrder {
		if o == d {
			return i
		}
	}
	return -1
}

// Step moves one level in dir, clamped at both ends.
func (d Difficulty) Step(dir Direction) Difficulty {
	i := d.rank()
	if i < 0 {
		return d
	}
	switch dir {
	case DirectionEasier:
		i--
	case DirectionHarder:
		i++
	}
	if i < 0 || i >= len(difficultyOrder) {
		return d
	}
	return difficultyOrder[i]
}

type Direction string

const (
	DirectionEasier Direction = "easier"
	DirectionHarder Direction = "harder"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionEasier, "easy", "down":
		return DirectionEasier, nil
	case DirectionHarder, "hard", "up":
		return DirectionHarder, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}
