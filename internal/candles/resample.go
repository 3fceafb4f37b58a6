package candles

import (
	"fmt"
	"time"
)

// secondsPerDay and the Monday shift used to bucket days into ISO weeks.
// Unix day 0 (1970-01-01) was a Thursday; adding 3 days aligns week indices
// to Monday starts.
const (
	secondsPerDay = 86400
	mondayShift   = 3
)

// ResampleWeekly aggregates daily bars into weekly bars, one bucket per ISO
// week (Monday-Sunday), or per run of `span` consecutive ISO weeks when
// span > 1. Each bucket emits open of the first day, max high, min low,
// close of the last day, summed volume, and the last day's timestamp.
func ResampleWeekly(daily *Frame, span int) (*Frame, error) {
	if span <= 0 {
		span = 1
	}
	if daily.Timeframe != "1d" {
		return nil, fmt.Errorf("weekly resample requires daily input, got %q", daily.Timeframe)
	}

	tf := fmt.Sprintf("%dw", span)
	out := &Frame{
		Timeframe: tf,
		Duration:  time.Duration(span) * 7 * 24 * time.Hour,
	}

	curBucket := int64(-1 << 62)
	n := daily.Len()
	for i := 0; i < n; i++ {
		day := daily.Times[i].Unix() / secondsPerDay
		bucket := (day + mondayShift) / 7 / int64(span)

		if bucket != curBucket {
			curBucket = bucket
			out.Times = append(out.Times, daily.Times[i])
			out.Open = append(out.Open, daily.Open[i])
			out.High = append(out.High, daily.High[i])
			out.Low = append(out.Low, daily.Low[i])
			out.Close = append(out.Close, daily.Close[i])
			out.Volume = append(out.Volume, daily.Volume[i])
			out.closes = append(out.closes, daily.Times[i].Add(daily.Duration))
			continue
		}

		last := len(out.Times) - 1
		if daily.High[i] > out.High[last] {
			out.High[last] = daily.High[i]
		}
		if daily.Low[i] < out.Low[last] {
			out.Low[last] = daily.Low[i]
		}
		out.Close[last] = daily.Close[i]
		out.Volume[last] += daily.Volume[i]
		// The bucket carries the last day's timestamp and closes with it.
		out.Times[last] = daily.Times[i]
		out.closes[last] = daily.Times[i].Add(daily.Duration)
	}
	return out, nil
}
