package ledger

import (
	"fmt"
	"strconv"
)

// =============================================================================
// PERIOD - accounting period key
// =============================================================================

// Period is an accounting period in the form YYYYMM, e.g. "202608".
// Periods are pre-validated foreign keys from the engine's point of view;
// this type only guards the format and provides ordering.
type Period string

// ParsePeriod validates the YYYYMM form.
func ParsePeriod(s string) (Period, error) {
	if len(s) != 6 {
		return "", fmt.Errorf("period %q: want YYYYMM", s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || year < 1900 {
		return "", fmt.Errorf("period %q: bad year", s)
	}
	month, err := strconv.Atoi(s[4:])
	if err != nil || month < 1 || month > 12 {
		return "", fmt.Errorf("period %q: bad month", s)
	}
	return Period(s), nil
}

func (p Period) Valid() bool {
	_, err := ParsePeriod(string(p))
	return err == nil
}

func (p Period) String() string { return string(p) }

// Before gives chronological ordering; YYYYMM sorts lexically.
func (p Period) Before(other Period) bool { return string(p) < string(other) }

// Next returns the following period, rolling the year at month 12.
func (p Period) Next() Period {
	year, _ := strconv.Atoi(string(p)[:4])
	month, _ := strconv.Atoi(string(p)[4:])
	month++
	if month > 12 {
		month = 1
		year++
	}
	return Period(fmt.Sprintf("%04d%02d", year, month))
}
