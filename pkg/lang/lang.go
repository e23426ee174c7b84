// Package lang validates and canonicalizes the language codes attached to
// jobs at intake, so every downstream engine sees the same spelling.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Normalize parses a BCP 47 language tag ("en", "pt-BR", "ro_RO") and returns
// its canonical base code ("en", "pt", "ro"). Engines key voices and models
// off the base language only.
func Normalize(code string) (string, error) {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// Same reports whether two language codes name the same base language.
// Unparseable codes are only the same when byte-identical.
func Same(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}
