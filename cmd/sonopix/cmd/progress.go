package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// progressBar redraws a single status line on w until stopped. Updates are
// percentages in [0, 100] as produced by the pipeline.
type progressBar struct {
	w        io.Writer
	message  string
	width    int
	updates  chan float64
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newProgressTracker(w io.Writer, message string) *progressBar {
	p := &progressBar{
		w:       w,
		message: message,
		width:   24,
		updates: make(chan float64, 1),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *progressBar) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(120 * time.Millisecond)
	defer ticker.Stop()

	percent := 0.0
	p.render(percent)

	for {
		select {
		case <-p.done:
			p.clearLine()
			return
		case val := <-p.updates:
			percent = clamp(val, 0, 100)
			p.render(percent)
		case <-ticker.C:
			p.render(percent)
		}
	}
}

func (p *progressBar) render(percent float64) {
	filled := int(percent / 100 * float64(p.width))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3d%%", p.message, bar, int(percent))
}

func (p *progressBar) clearLine() {
	totalLen := len(p.message) + p.width + 10
	fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", totalLen))
}

// Stop clears the bar and prints finalMessage in its place.
func (p *progressBar) Stop(finalMessage string) {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		fmt.Fprintf(p.w, "%s\n", finalMessage)
	})
}

// Update never blocks; only the latest value is kept.
func (p *progressBar) Update(percent float64) {
	select {
	case p.updates <- percent:
	default:
		select {
		case <-p.updates:
		default:
		}
		select {
		case p.updates <- percent:
		default:
		}
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
