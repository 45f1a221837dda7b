package parallel

import (
	"fmt"
	"time"
)

// ProgressTracker tracks progress over a known number of items
type ProgressTracker struct {
	total       int64
	startTime   time.Time
	description string
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int64, description string) *ProgressTracker {
	return &ProgressTracker{
		total:       total,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress holds current progress information
type Progress struct {
	Current     int64
	Total       int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // items per second
	Description string
}

// Calculate returns current progress metrics given the number of items done
func (p *ProgressTracker) Calculate(done int64) Progress {
	elapsed := time.Since(p.startTime)

	var percentage float64
	var eta time.Duration

	if p.total > 0 && done > 0 {
		percentage = float64(done) / float64(p.total) * 100
		if percentage < 100 {
			// Estimate remaining time from the average item duration so far
			perItem := elapsed / time.Duration(done)
			eta = perItem * time.Duration(p.total-done)
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(done) / elapsed.Seconds()
	}

	return Progress{
		Current:     done,
		Total:       p.total,
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		Throughput:  throughput,
		Description: p.description,
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as items per second, or per minute
// when tiles take longer than a second each
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	if itemsPerSec >= 1 {
		return fmt.Sprintf("%.1f/s", itemsPerSec)
	}
	return fmt.Sprintf("%.1f/min", itemsPerSec*60)
}

// FormatDuration rounds a duration for timing log lines
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
