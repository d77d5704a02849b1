package graph

import (
	"strconv"
	"strings"

	dErrors "lineage/pkg/domain-errors"
)

// PartialDate is a genealogical date where month and day may be unknown
// (zero).
type PartialDate struct {
	Year  int
	Month int
	Day   int
}

// ParseDate accepts YYYY, YYYY-MM and YYYY-MM-DD.
func ParseDate(s string) (PartialDate, error) {
	invalid := dErrors.New(dErrors.CodeBadRequest, "invalid date: "+s)
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) == 0 || len(parts) > 3 || len(parts[0]) != 4 {
		return PartialDate{}, invalid
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return PartialDate{}, invalid
		}
		nums[i] = n
	}
	d := PartialDate{Year: nums[0], Month: nums[1], Day: nums[2]}
	if len(parts) >= 2 && (d.Month < 1 || d.Month > 12) {
		return PartialDate{}, invalid
	}
	if len(parts) == 3 && (d.Day < 1 || d.Day > 31) {
		return PartialDate{}, invalid
	}
	return d, nil
}

// YearsApart returns the absolute distance in years, ignoring month and day.
func (d PartialDate) YearsApart(other PartialDate) int {
	diff := d.Year - other.Year
	if diff < 0 {
		return -diff
	}
	return diff
}

// SameMonth reports whether both dates carry the same known year and month.
func (d PartialDate) SameMonth(other PartialDate) bool {
	return d.Month != 0 && d.Year == other.Year && d.Month == other.Month
}

// SameDay reports whether both dates are fully known and equal.
func (d PartialDate) SameDay(other PartialDate) bool {
	return d.Day != 0 && d == other
}
