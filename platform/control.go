package platform

import (
	"fmt"
	"strconv"
	"strings"
)

// ControlCode is a numeric control action pushed by the platform while a
// session is open. Values follow the platform's own numbering.
type ControlCode int

const (
	ControlUnknown ControlCode = iota
	ControlStreamPaused
	ControlStreamUnpaused
	ControlStreamEnded
	ControlStreamSuspended
)

func (c ControlCode) String() string {
	switch c {
	case ControlUnknown:
		return "unknown"
	case ControlStreamPaused:
		return "stream_paused"
	case ControlStreamUnpaused:
		return "stream_unpaused"
	case ControlStreamEnded:
		return "stream_ended"
	case ControlStreamSuspended:
		return "stream_suspended"
	default:
		return "code_" + strconv.Itoa(int(c))
	}
}

// ControlPredicate decides whether a control code means the stream is over.
type ControlPredicate func(ControlCode) bool

// EndCodes returns a predicate matching exactly the given codes.
func EndCodes(codes ...ControlCode) ControlPredicate {
	set := make(map[ControlCode]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(c ControlCode) bool {
		_, ok := set[c]
		return ok
	}
}

// DefaultStreamEnd treats "ended" and "suspended" as the end of a stream.
var DefaultStreamEnd = EndCodes(ControlStreamEnded, ControlStreamSuspended)

// ParseControlCodes parses a list of codes given either as numbers or as names
// ("3", "stream_ended"), separated by commas or whitespace.
func ParseControlCodes(s string) ([]ControlCode, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]ControlCode, 0, len(fields))
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			if n < 0 {
				return nil, fmt.Errorf("invalid control code %q", f)
			}
			out = append(out, ControlCode(n))
			continue
		}
		c, ok := controlByName(strings.ToLower(f))
		if !ok {
			return nil, fmt.Errorf("invalid control code %q", f)
		}
		out = append(out, c)
	}
	return out, nil
}

func controlByName(name string) (ControlCode, bool) {
	for c := ControlUnknown; c <= ControlStreamSuspended; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}
