package invoice

import (
	"fmt"
	"time"
)

// localTargetDate converts the target timestamp into the account's local
// calendar date, returned as midnight UTC of that date.
func localTargetDate(targetTime time.Time, timeZone string) (time.Time, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad account time zone %q: %w", timeZone, err)
	}
	local := targetTime.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}
