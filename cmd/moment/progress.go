package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a single status line with the elapsed time and a
// phase polled from the caller, e.g. the current pipeline state.
//
//	p := NewProgressPrinter(w, "Connecting to Moment", func() string { return dev.State().String() })
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	w      io.Writer
	prefix string
	phase  func() string

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer writing to w
func NewProgressPrinter(w io.Writer, prefix string, phase func() string) *ProgressPrinter {
	return &ProgressPrinter{
		w:      w,
		prefix: prefix,
		phase:  phase,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins updating the status line in a background goroutine
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		start := time.Now()
		p.print(0)

		go func() {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()

			for {
				select {
				case <-p.stop:
					return
				case <-ticker.C:
					p.print(int(time.Since(start).Seconds()))
				}
			}
		}()
	})
}

func (p *ProgressPrinter) print(seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, p.phase(), seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, p.phase())
	}
}

// Stop ends the updates and clears the line. Safe to call more than once,
// and before Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		started := true
		p.startOnce.Do(func() { started = false })
		if started {
			<-p.done
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
