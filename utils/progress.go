package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"

	"tstream/internal"
)

// ProgressTracker renders transfer progress and keeps rate statistics
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	startTime time.Time
	total     int64
	current   int64
	mutex     sync.RWMutex

	// Statistics tracking
	lastRate   int64
	peakRate   int64
	rateSample []int64
	maxSamples int
}

// NewProgressTracker creates a tracker; total <= 0 means the size is unknown
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerWithWriter(total, quiet, os.Stdout)
}

// NewProgressTrackerWithWriter creates a tracker printing its summary to out
func NewProgressTrackerWithWriter(total int64, quiet bool, out io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:      quiet,
		out:        out,
		startTime:  time.Now(),
		total:      total,
		maxSamples: 10,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{string . "rate"}}`
		if total <= 0 {
			tmpl = `{{string . "prefix"}}{{counters . }} {{string . "rate"}} {{etime . }}`
		}
		bar := pb.ProgressBarTemplate(tmpl).New(0)
		bar.SetTotal(total)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", "Transferring: ")
		bar.Set("rate", "")
		bar.SetWriter(out)
		tracker.bar = bar.Start()
	}

	return tracker
}

// Update records the saved size and the rate reported by the engine
func (p *ProgressTracker) Update(saved, rate int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current = saved
	p.lastRate = rate
	if rate > p.peakRate {
		p.peakRate = rate
	}
	p.rateSample = append(p.rateSample, rate)
	if len(p.rateSample) > p.maxSamples {
		p.rateSample = p.rateSample[1:]
	}

	if p.bar != nil {
		p.bar.SetCurrent(saved)
		p.bar.Set("rate", humanize.IBytes(uint64(max(rate, 0)))+"/s")
	}
}

// Finish completes the progress bar and returns the transfer summary.
// averageRate is the value passed with the final callback.
func (p *ProgressTracker) Finish(averageRate int64, failed bool) *internal.TransferSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)

	if p.bar != nil {
		p.bar.Finish()
	}

	summary := &internal.TransferSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageRate,
		Failed:       failed,
	}

	if !p.quiet {
		p.displaySummary(summary)
	}

	return summary
}

func (p *ProgressTracker) displaySummary(summary *internal.TransferSummary) {
	fmt.Fprintf(p.out, "\n")
	if summary.Failed {
		fmt.Fprintf(p.out, "Transfer failed after %s\n", formatBytes(summary.TotalBytes))
	} else {
		fmt.Fprintf(p.out, "Transfer completed successfully!\n")
	}
	fmt.Fprintf(p.out, "Total size: %s\n", formatBytes(summary.TotalBytes))
	fmt.Fprintf(p.out, "Total time: %v\n", summary.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(p.out, "Average speed: %s/s\n", formatBytes(summary.AverageSpeed))
	if p.peakRate > 0 {
		fmt.Fprintf(p.out, "Peak speed: %s/s\n", formatBytes(p.peakRate))
	}
}

// GetCurrentStats returns the smoothed rate, ETA and percentage
func (p *ProgressTracker) GetCurrentStats() (rate int64, eta time.Duration, percentage float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if n := len(p.rateSample); n > 0 {
		count := min(n, 3)
		var sum int64
		for _, r := range p.rateSample[n-count:] {
			sum += r
		}
		rate = sum / int64(count)
	}

	if rate > 0 && p.total > p.current {
		eta = time.Duration(float64(p.total-p.current) / float64(rate) * float64(time.Second))
	}

	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	return rate, eta, percentage
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

func formatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
