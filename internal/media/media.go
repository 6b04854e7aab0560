// Package media holds the vocabulary shared by the flows, the scheduler
// payloads and the transport: media kinds, UTC times of day, job payloads
// and job identifiers.
package media

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type is a supported media kind. The string values are persisted.
type Type string

const (
	Sticker Type = "sticker"
	GIF     Type = "gif"
	Photo   Type = "photo"
	Video   Type = "video"
)

// Types lists every supported kind.
var Types = []Type{Sticker, GIF, Photo, Video}

func (t Type) Valid() bool {
	switch t {
	case Sticker, GIF, Photo, Video:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unsupported media type %q", s)
	}
	return t, nil
}

// TimeOfDay is a UTC wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ParseTimeOfDay accepts strict 24-hour "HH:MM" with two-digit fields.
// "9:30", "24:00" and "08:60" are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := hhmmRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: want HH:MM (24-hour, UTC)", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: h, Minute: mm}, nil
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }
