package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
)

var (
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
)

// progressPrinter renders stage events as they arrive.
type progressPrinter struct {
	w       io.Writer
	verbose bool
	mu      sync.Mutex
}

func newProgressPrinter(w io.Writer, verbose bool) *progressPrinter {
	return &progressPrinter{w: w, verbose: verbose}
}

// Observe implements pipeline.Observer.
func (p *progressPrinter) Observe(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Stage == "" {
		_, _ = fmt.Fprintf(p.w, "%s %s\n", mutedStyle.Render("•"), ev.Log)
		return
	}
	pos := fmt.Sprintf("[%02d/%02d]", ev.Stage.Index()+1, len(model.StageKeys()))
	label := ev.Stage.Label()

	if ev.Log != "" {
		if p.verbose {
			_, _ = fmt.Fprintf(p.w, "        %s\n", mutedStyle.Render(ev.Log))
		}
		return
	}
	switch ev.Status {
	case model.StageRunning:
		if p.verbose {
			_, _ = fmt.Fprintf(p.w, "%s %s %s\n", runningStyle.Render("›"), pos, label)
		}
	case model.StageDone:
		_, _ = fmt.Fprintf(p.w, "%s %s %s\n", doneStyle.Render("✓"), pos, label)
	case model.StageError:
		_, _ = fmt.Fprintf(p.w, "%s %s %s\n", errorStyle.Render("✗"), pos, errorStyle.Render(label))
	}
}
