package escaperoom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Override is admin-edited text for one stage. Nil fields fall through to the
// built-in content.
type Override struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Backstory   *string `json:"backstory,omitempty"`
}

func (o Override) IsZero() bool {
	return o.Title == nil && o.Description == nil && o.Backstory == nil
}

// CustomContent is the sparse override table, theme -> stage -> fields.
type CustomContent map[Theme]map[int]Override

func (c CustomContent) Get(theme Theme, stage int) (Override, bool) {
	o, ok := c[theme][stage]
	return o, ok
}

func (c CustomContent) Clone() CustomContent {
	out := make(CustomContent, len(c))
	for theme, stages := range c {
		m := make(map[int]Override, len(stages))
		for stage, o := range stages {
			m[stage] = o
		}
		out[theme] = m
	}
	return out
}

// MergeContent applies o on top of base. Each present override field replaces
// the built-in one; everything else, including solutions and hints, comes
// from base.
func MergeContent(base Puzzle, o Override) Puzzle {
	out := base
	if o.Title != nil {
		out.Title = *o.Title
	}
	if o.Description != nil {
		out.Description = *o.Description
	}
	if o.Backstory != nil {
		out.Backstory = *o.Backstory
	}
	return out
}

// ParseCustomContent decodes an import document and rejects unknown themes,
// out of range stages and empty entries before anything is applied.
func ParseCustomContent(data []byte) (CustomContent, error) {
	var raw map[Theme]map[int]Override
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return ValidateCustomContent(raw)
}

func ValidateCustomContent(raw map[Theme]map[int]Override) (CustomContent, error) {
	out := make(CustomContent, len(raw))
	for theme, stages := range raw {
		if !Builtin().Has(theme) {
			return nil, fmt.Errorf("%w: unknown theme %q", ErrInvalidContent, theme)
		}
		m := make(map[int]Override, len(stages))
		for stage, o := range stages {
			if stage < 1 || stage > TotalStages {
				return nil, fmt.Errorf("%w: theme %q stage %d out of range", ErrInvalidContent, theme, stage)
			}
			if o.Title != nil && strings.TrimSpace(*o.Title) == "" {
				return nil, fmt.Errorf("%w: theme %q stage %d has an empty title", ErrInvalidContent, theme, stage)
			}
			if o.IsZero() {
				continue
			}
			m[stage] = o
		}
		out[theme] = m
	}
	return out, nil
}

// Resolver answers "what does stage n of theme t look like right now". It is
// immutable; build a new one when overrides change.
type Resolver struct {
	catalog   *Catalog
	overrides CustomContent
}

func NewResolver(catalog *Catalog, overrides CustomContent) *Resolver {
	if catalog == nil {
		catalog = Builtin()
	}
	return &Resolver{catalog: catalog, overrides: overrides.Clone()}
}

func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Overrides returns a copy of the active override table.
func (r *Resolver) Overrides() CustomContent { return r.overrides.Clone() }

// Resolve never fails: unknown themes use DefaultTheme and unknown stages get
// a placeholder puzzle.
func (r *Resolver) Resolve(theme Theme, stage int) Puzzle {
	if !r.catalog.Has(theme) {
		theme = DefaultTheme
	}
	base, ok := r.catalog.Puzzle(theme, stage)
	if !ok {
		return PlaceholderPuzzle(theme, stage)
	}
	if o, ok := r.overrides.Get(theme, stage); ok {
		return MergeContent(base, o)
	}
	return base
}

// PlaceholderPuzzle stands in for a stage that does not exist so the UI always
// has something to show. Nothing matches it.
func PlaceholderPuzzle(theme Theme, stage int) Puzzle {
	return Puzzle{
		Theme:       theme,
		Stage:       stage,
		Title:       "Uncharted Room",
		Description: "This room has not been built yet. Head back to the previous stage.",
		Kind:        TextInput{},
	}
}
