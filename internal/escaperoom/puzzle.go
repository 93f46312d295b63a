package escaperoom

import (
	"strings"

	"golang.org/x/text/cases"
)

type Theme string

type PuzzleType string

const (
	PuzzleTextInput      PuzzleType = "text-input"
	PuzzleMultipleChoice PuzzleType = "multiple-choice"
)

// Evidence is an item the player can inspect on a stage. Whether it has been
// reviewed is UI state and is not tracked here.
type Evidence struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Puzzle is the effective content for one stage of a theme.
type Puzzle struct {
	Theme       Theme
	Stage       int
	Title       string
	Description string
	Backstory   string
	Kind        PuzzleKind
	Evidence    []Evidence
	Hints       []string
}

// PuzzleKind is either TextInput or MultipleChoice.
type PuzzleKind interface {
	Type() PuzzleType
	puzzleKind()
}

type TextInput struct {
	Solution     string
	Alternatives []string
}

type MultipleChoice struct {
	Options []Option
	// Solution is the ID of the correct option.
	Solution string
}

func (TextInput) Type() PuzzleType      { return PuzzleTextInput }
func (MultipleChoice) Type() PuzzleType { return PuzzleMultipleChoice }
func (TextInput) puzzleKind()           {}
func (MultipleChoice) puzzleKind()      {}

func (p Puzzle) Type() PuzzleType {
	if p.Kind == nil {
		return PuzzleTextInput
	}
	return p.Kind.Type()
}

// Options returns the choices of a multiple-choice puzzle, nil otherwise.
func (p Puzzle) Options() []Option {
	if mc, ok := p.Kind.(MultipleChoice); ok {
		return mc.Options
	}
	return nil
}

// Solution returns the canonical answer text.
func (p Puzzle) Solution() string {
	switch k := p.Kind.(type) {
	case TextInput:
		return k.Solution
	case MultipleChoice:
		for _, o := range k.Options {
			if o.ID == k.Solution {
				return o.Label
			}
		}
		return k.Solution
	}
	return ""
}

// Matches compares raw with the solution after NormalizeAnswer. No partial
// credit and no fuzzy matching.
func (p Puzzle) Matches(raw string) bool {
	in := NormalizeAnswer(raw)
	if in == "" {
		return false
	}
	switch k := p.Kind.(type) {
	case TextInput:
		if in == NormalizeAnswer(k.Solution) {
			return true
		}
		for _, alt := range k.Alternatives {
			if in == NormalizeAnswer(alt) {
				return true
			}
		}
	case MultipleChoice:
		if in == NormalizeAnswer(k.Solution) {
			return true
		}
		for _, o := range k.Options {
			if o.ID == k.Solution && in == NormalizeAnswer(o.Label) {
				return true
			}
		}
	}
	return false
}

// Hint returns the i-th ordered hint for the stage.
func (p Puzzle) Hint(i int) (string, bool) {
	if i < 0 || i >= len(p.Hints) {
		return "", false
	}
	return p.Hints[i], true
}

// NormalizeAnswer trims surrounding whitespace and case-folds.
func NormalizeAnswer(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
