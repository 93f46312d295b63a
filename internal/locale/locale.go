// Package locale translates the messages players see. Message ids are the
// English source strings, so a missing catalog or entry leaves text as is.
package locale

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leonelquinteros/gotext"
)

const domain = "default"

type Translator struct {
	lang string
	loc  *gotext.Locale
}

// New loads the catalog for lang from dir (dir/<lang>/LC_MESSAGES/default.po).
// English needs no catalog.
func New(dir, lang string) (*Translator, error) {
	t := &Translator{lang: lang}
	if lang == "" || lang == "en" {
		return t, nil
	}
	path := filepath.Join(dir, lang, "LC_MESSAGES", domain+".po")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("locale %q: %w", lang, err)
	}
	t.loc = gotext.NewLocale(dir, lang)
	t.loc.AddDomain(domain)
	return t, nil
}

func (t *Translator) Lang() string { return t.lang }

// Text translates msg. A nil Translator returns msg unchanged.
func (t *Translator) Text(msg string) string {
	if t == nil || t.loc == nil || msg == "" {
		return msg
	}
	return t.loc.Get(msg)
}
