package parse

import (
	"strconv"
	"strings"
)

// Clock is a time of day. Approximate is set when the user did not know it.
type Clock struct {
	Hour        int
	Minute      int
	Approximate bool
}

// Noon is used when the birth time is not known.
var Noon = Clock{Hour: 12, Minute: 0, Approximate: true}

// TimeOfDay parses replies such as 2:30 PM, 14:30, 14.30, 14 30, 7am or 14.
// "unknown" and similar words yield Noon.
func TimeOfDay(input string) (Clock, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return Clock{}, invalid(input, "empty")
	}
	if IsUnknownWord(s) {
		return Noon, nil
	}

	s = strings.ReplaceAll(s, "a.m.", "am")
	s = strings.ReplaceAll(s, "p.m.", "pm")
	meridiem := ""
	switch {
	case strings.HasSuffix(s, "am"):
		meridiem, s = "am", strings.TrimSuffix(s, "am")
	case strings.HasSuffix(s, "pm"):
		meridiem, s = "pm", strings.TrimSuffix(s, "pm")
	}

	fields := splitFields(strings.TrimSpace(s))
	if len(fields) == 0 || len(fields) > 2 {
		return Clock{}, invalid(input, "expected HH:MM")
	}

	hour, err := strconv.Atoi(fields[0])
	if err != nil {
		return Clock{}, invalid(input, "hour is not a number")
	}
	minute := 0
	if len(fields) == 2 {
		if minute, err = strconv.Atoi(fields[1]); err != nil {
			return Clock{}, invalid(input, "minute is not a number")
		}
	}
	if minute < 0 || minute > 59 {
		return Clock{}, invalid(input, "minute out of range")
	}

	switch meridiem {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return Clock{}, invalid(input, "hour out of range")
		}
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
	default:
		if hour < 0 || hour > 23 {
			return Clock{}, invalid(input, "hour out of range")
		}
	}
	return Clock{Hour: hour, Minute: minute}, nil
}
