// Package parse turns free-text chat replies into birth details.
package parse

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknown marks replies such as "don't know".
var ErrUnknown = errors.New("value not known")

// Error describes why a reply could not be parsed.
type Error struct {
	Input  string
	Reason string
	err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

func invalid(input, reason string) error {
	return &Error{Input: input, Reason: reason}
}

func unknown(input string) error {
	return &Error{Input: input, Reason: "not known", err: ErrUnknown}
}

var unknownWords = map[string]bool{
	"unknown":     true,
	"not known":   true,
	"dont know":   true,
	"don't know":  true,
	"do not know": true,
	"not sure":    true,
	"idk":         true,
	"na":          true,
	"n/a":         true,
}

// IsUnknownWord reports whether the reply says the value is not known.
func IsUnknownWord(s string) bool {
	return unknownWords[strings.ToLower(strings.TrimSpace(s))]
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == ' ' || r == ':'
	})
}
