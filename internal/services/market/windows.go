package market

import (
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

// minuteBarsPerDay bounds the row estimate for intraday windows. Sessions
// are shorter in practice, so the estimate errs toward smaller windows.
const minuteBarsPerDay = 1440

// planWindows splits a date range into consecutive call-sized windows that
// respect the provider's row cap. Windows overlap by one frequency step so
// the merge never leaves a seam, and only the final window carries the
// provider's end-date buffer.
func planWindows(r models.DateRange, limits interfaces.Limits, freq models.Frequency) []models.DateRange {
	windowDays := r.Days()
	if limits.MaxRows > 0 {
		rowsPerDay := 1
		if freq == models.FrequencyIntraday {
			rowsPerDay = minuteBarsPerDay
		}
		if d := limits.MaxRows / rowsPerDay; d > 0 && d < windowDays {
			windowDays = d
		}
	}

	var out []models.DateRange
	start := r.Start
	for !start.After(r.End) {
		end := start.AddDate(0, 0, windowDays-1)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, models.DateRange{Start: start, End: end})
		if !end.Before(r.End) {
			break
		}
		start = end
		if windowDays <= 1 {
			start = end.AddDate(0, 0, 1)
		}
	}

	if len(out) > 0 && limits.EndBufferDays > 0 {
		last := &out[len(out)-1]
		last.End = last.End.AddDate(0, 0, limits.EndBufferDays)
	}
	return out
}
