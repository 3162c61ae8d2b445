package store

import (
	"database/sql/driver"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"modernc.org/sqlite"
)

// FoldFunc is the scalar function name registered with SQLite for
// accent- and case-insensitive comparison inside the storage engine.
const FoldFunc = "fold_text"

// Fold normalizes text for search comparison: decompose to NFD, drop
// combining marks, lower-case the rest. "Café" and "cafe" fold equal.
func Fold(text string) string {
	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining marks (accents)
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func init() {
	// Registered at the driver level so folded predicates evaluate inside
	// SQLite itself; pagination and counting then agree with filtering.
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return Fold(v), nil
			case []byte:
				return Fold(string(v)), nil
			default:
				return v, nil
			}
		})
}
