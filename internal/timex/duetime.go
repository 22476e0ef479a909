package timex

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

// DateLayout is the layout of local calendar dates ("2026-02-17").
const DateLayout = "2006-01-02"

const (
	generateDueHour = 3
	publishDueHour  = 8
)

var offsetLabelRe = regexp.MustCompile(`^(?:GMT|UTC)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// ParseOffsetLabel converts a textual zone offset ("+09:00", "GMT+9",
// "UTC-0530", "GMT", "Z") into signed minutes east of UTC.
func ParseOffsetLabel(label string) (int, error) {
	s := strings.TrimSpace(label)
	switch s {
	case "GMT", "UTC", "Z":
		return 0, nil
	}

	m := offsetLabelRe.FindStringSubmatch(s)
	if m == nil {
		return 0, common.FailedPrecondition("Unsupported timezone offset format: %s", label)
	}

	hours, _ := strconv.Atoi(m[2])
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	if hours > 23 || minutes > 59 {
		return 0, common.FailedPrecondition("Unsupported timezone offset format: %s", label)
	}

	total := hours*60 + minutes
	if m[1] == "-" {
		total = -total
	}
	return total, nil
}

// LoadLocation resolves an IANA timezone name. Unknown names are an
// invalid-argument error.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, common.InvalidArgument("Invalid timezone: %q", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, common.InvalidArgument("Invalid timezone: %s", name)
	}
	return loc, nil
}

// OffsetMinutes returns the UTC offset of loc at instant t, going through
// the zone's textual offset label.
func OffsetMinutes(loc *time.Location, t time.Time) (int, error) {
	return ParseOffsetLabel(t.In(loc).Format("-07:00"))
}

// ParseDate parses a local "YYYY-MM-DD" date.
func ParseDate(dateLocal string) (time.Time, error) {
	d, err := time.Parse(DateLayout, dateLocal)
	if err != nil {
		return time.Time{}, common.InvalidArgument("dateLocal must be YYYY-MM-DD, got %q", dateLocal)
	}
	return d, nil
}

// DueTimeUTC returns the instant at which the wall clock in timezone reads
// dateLocal hour:minute. The offset is looked up twice so that a guess on
// the wrong side of a DST transition is corrected by the second pass.
func DueTimeUTC(dateLocal string, hour, minute int, timezone string) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, common.InvalidArgument("invalid wall clock %02d:%02d", hour, minute)
	}
	d, err := ParseDate(dateLocal)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	naive := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)

	first, err := OffsetMinutes(loc, naive)
	if err != nil {
		return time.Time{}, err
	}
	guess := naive.Add(-time.Duration(first) * time.Minute)

	second, err := OffsetMinutes(loc, guess)
	if err != nil {
		return time.Time{}, err
	}
	return naive.Add(-time.Duration(second) * time.Minute), nil
}

// DefaultDueHour is the local hour a journal phase runs at: 08:00 for
// publish, 03:00 otherwise.
func DefaultDueHour(phase string) int {
	if phase == "publish" {
		return publishDueHour
	}
	return generateDueHour
}

// LocalDate formats t as a calendar date in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
