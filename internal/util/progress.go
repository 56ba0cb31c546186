package util

import "time"

// RunProgress is the progress snapshot attached to chunk events.
type RunProgress struct {
	Done              int    `json:"done"`
	Total             int    `json:"total"`
	Percentage        int32  `json:"percentage"`
	EstimatedDuration *int64 `json:"estimated_duration_ms,omitempty"`
	TimeRemaining     *int64 `json:"time_remaining_ms,omitempty"`
}

// BuildRunProgress computes the percentage of processed chunks and, once at
// least one chunk is done, a linear estimate of total and remaining time.
func BuildRunProgress(done, total int, elapsed time.Duration) RunProgress {
	p := RunProgress{
		Done:       done,
		Total:      total,
		Percentage: CalculateProgressPercentage(done, total),
	}
	if done <= 0 || total <= 0 || elapsed <= 0 {
		return p
	}

	done = min(done, total)
	perChunk := elapsed.Milliseconds() / int64(done)
	estimated := perChunk * int64(total)
	remaining := max(estimated-elapsed.Milliseconds(), 0)
	p.EstimatedDuration = &estimated
	p.TimeRemaining = &remaining
	return p
}

func CalculateProgressPercentage(done, total int) int32 {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return int32(int64(done) * 100 / int64(total))
}
