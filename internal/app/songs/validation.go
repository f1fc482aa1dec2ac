package songs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSong indicates validation failure for song data.
var ErrInvalidSong = errors.New("invalid song")

const (
	MinDuration    = 1
	MaxDuration    = 7200
	MinReleaseYear = 1900
)

// Fields is the candidate field set for creating or replacing a song.
type Fields struct {
	Title       string
	Artist      string
	Album       *string
	Genre       string
	Duration    *int
	ReleaseYear *int
}

type rule struct {
	ok     func(Fields) bool
	reason func() string
}

// rules are evaluated in order; only the first failure is reported.
var rules = []rule{
	{ok: func(f Fields) bool { return present(f.Title) }, reason: fixed("title is required")},
	{ok: func(f Fields) bool { return present(f.Artist) }, reason: fixed("artist is required")},
	{ok: func(f Fields) bool { return present(f.Genre) }, reason: fixed("genre is required")},
	{
		ok:     func(f Fields) bool { return IsValidDuration(f.Duration) },
		reason: fixed(fmt.Sprintf("duration must be between %d and %d seconds", MinDuration, MaxDuration)),
	},
	{
		ok: func(f Fields) bool { return IsValidReleaseYear(f.ReleaseYear) },
		reason: func() string {
			return fmt.Sprintf("release year must be between %d and %d", MinReleaseYear, time.Now().Year())
		},
	},
}

// Validate returns nil when f is acceptable, otherwise an error wrapping
// ErrInvalidSong that names the first violated rule.
func (f Fields) Validate() error {
	for _, r := range rules {
		if !r.ok(f) {
			return fmt.Errorf("%w: %s", ErrInvalidSong, r.reason())
		}
	}
	return nil
}

// IsValid reports whether every rule holds.
func (f Fields) IsValid() bool {
	return f.Validate() == nil
}

// IsValidDuration reports whether d is present and within 1..7200 seconds.
func IsValidDuration(d *int) bool {
	return d != nil && *d >= MinDuration && *d <= MaxDuration
}

// IsValidReleaseYear accepts an absent year, or one between 1900 and the current year.
func IsValidReleaseYear(y *int) bool {
	if y == nil {
		return true
	}
	return *y >= MinReleaseYear && *y <= time.Now().Year()
}

// Reason strips the sentinel prefix from a validation error so the message
// can be shown to a user.
func Reason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidSong.Error()+": ")
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

func fixed(msg string) func() string {
	return func() string { return msg }
}
