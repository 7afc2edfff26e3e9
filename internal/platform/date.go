package platform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const absoluteCallDateLayout = "2006-01-02 15:04:05"

// ParseCallDate resolves a scheduled-call date string. Empty means now; an
// absolute "2006-01-02 15:04:05" timestamp is taken as-is (a moment already
// in the past collapses to now); "HH:MM:SS" and "HH:MM" are offsets from
// now.
func ParseCallDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}

	if at, err := time.ParseInLocation(absoluteCallDateLayout, s, now.Location()); err == nil {
		if at.Before(now) {
			return now, nil
		}
		return at, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, fmt.Errorf("invalid call date %q", s)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid call date %q", s)
		}
		nums[i] = n
	}
	h, m := nums[0], nums[1]
	sec := 0
	if len(nums) == 3 {
		sec = nums[2]
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return time.Time{}, fmt.Errorf("invalid call date %q", s)
	}
	offset := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	return now.Add(offset), nil
}
