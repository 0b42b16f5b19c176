package monitor

import "fmt"

// FormatRate formats an evaluation rate as "X.X evals/min"
func FormatRate(perMinute float64) string {
	return fmt.Sprintf("%.1f evals/min", perMinute)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats done out of total as "done/total"
func FormatCount(done, total int) string {
	return fmt.Sprintf("%d/%d", done, total)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatETA estimates the time to evaluate remaining clusters at the
// given rate. Without a positive rate there is no estimate.
func FormatETA(remaining int, perMinute float64) string {
	switch {
	case remaining <= 0:
		return "done"
	case perMinute <= 0:
		return "n/a"
	}
	return FormatDuration(int64(float64(remaining) / perMinute * 60))
}
