package parse

import (
	"strconv"
	"strings"
	"time"
)

// Date parses day-first dates such as 15/08/1990, 15-08-90, 1990-08-15 or
// 15.08. A missing year defaults to thirty years before now. Two-digit years
// up to 30 land in the 2000s, the rest in the 1900s.
func Date(input string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return time.Time{}, invalid(input, "empty")
	}
	if IsUnknownWord(s) {
		return time.Time{}, unknown(input)
	}

	fields := splitFields(s)
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return time.Time{}, invalid(input, "expected numbers like DD/MM/YYYY")
		}
		nums[i] = n
	}

	switch len(fields) {
	case 3:
		if len(fields[0]) == 4 {
			return build(input, nums[0], nums[1], nums[2])
		}
		if len(fields[2]) != 4 && len(fields[2]) != 2 {
			return time.Time{}, invalid(input, "year must have 2 or 4 digits")
		}
		year := nums[2]
		if len(fields[2]) == 2 {
			year = expandYear(year)
		}
		if t, err := build(input, year, nums[1], nums[0]); err == nil {
			return t, nil
		}
		// month-first fallback, e.g. 08/15/1990
		return build(input, year, nums[0], nums[1])
	case 2:
		year := now.Year() - 30
		if t, err := build(input, year, nums[1], nums[0]); err == nil {
			return t, nil
		}
		return build(input, year, nums[0], nums[1])
	default:
		return time.Time{}, invalid(input, "expected DD/MM/YYYY")
	}
}

func expandYear(y int) int {
	if y <= 30 {
		return 2000 + y
	}
	return 1900 + y
}

func build(input string, year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1000 {
		return time.Time{}, invalid(input, "date out of range")
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, invalid(input, "no such day")
	}
	return t, nil
}
