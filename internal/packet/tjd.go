package packet

import "time"

// TJDEpoch is day 0 of the Truncated Julian Day count (JD 2440000.5).
var TJDEpoch = time.Date(1968, time.May, 24, 0, 0, 0, 0, time.UTC)

// maxYear bounds derived timestamps to what RFC 3339 (and therefore JSON
// encoding of time.Time) can represent.
const maxYear = 9999

// TJDToTime converts a TJD day count and seconds-of-day expressed in
// centiseconds into an absolute UTC time. The second return is false when no
// time can be derived: tjd <= 0, sodCenti < 0, or a result past year 9999.
func TJDToTime(tjd, sodCenti int32) (time.Time, bool) {
	if tjd <= 0 || sodCenti < 0 {
		return time.Time{}, false
	}

	t := TJDEpoch.AddDate(0, 0, int(tjd)).
		Add(time.Duration(sodCenti) * 10 * time.Millisecond)
	if t.Year() > maxYear {
		return time.Time{}, false
	}
	return t, true
}
