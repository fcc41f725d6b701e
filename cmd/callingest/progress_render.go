package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"callingest/internal/progress"
	"callingest/internal/services"
)

// progressRenderer draws a progress bar on terminals and prints sampled lines
// elsewhere.
type progressRenderer struct {
	out     io.Writer
	label   string
	bar     *progressbar.ProgressBar
	sampler *progress.Sampler
	title   cases.Caser
}

func newProgressRenderer(out io.Writer, label string, interactive bool) *progressRenderer {
	r := &progressRenderer{
		out:     out,
		label:   label,
		sampler: progress.NewSampler(10),
		title:   cases.Title(language.English),
	}
	if interactive {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(0),
		)
	}
	return r
}

func (r *progressRenderer) stageLabel(stage progress.Stage) string {
	return r.title.String(string(stage))
}

// Sink renders events. It is driven by a single reporter.
func (r *progressRenderer) Sink() progress.Sink {
	return func(ev progress.Event) {
		if r.bar != nil {
			r.renderBar(ev)
			return
		}
		r.renderLine(ev)
	}
}

func (r *progressRenderer) renderBar(ev progress.Event) {
	switch ev.Stage {
	case progress.StageDone:
		_ = r.bar.Set(100)
		_ = r.bar.Finish()
		fmt.Fprintln(r.out)
	case progress.StageError:
		_ = r.bar.Exit()
		fmt.Fprintln(r.out)
	default:
		r.bar.Describe(fmt.Sprintf("%s %-11s", r.label, r.stageLabel(ev.Stage)))
		_ = r.bar.Set(int(ev.Percent))
	}
}

func (r *progressRenderer) renderLine(ev progress.Event) {
	switch ev.Stage {
	case progress.StageDone:
		fmt.Fprintf(r.out, "%s: %s 100%%\n", r.label, r.stageLabel(ev.Stage))
	case progress.StageError:
		status := r.stageLabel(ev.Stage)
		if services.IsCancellation(ev.Err) {
			status = "Cancelled"
		}
		fmt.Fprintf(r.out, "%s: %s at %.0f%%\n", r.label, status, ev.Percent)
	default:
		if !r.sampler.Allow(ev) {
			return
		}
		fmt.Fprintf(r.out, "%s: %s %.0f%%\n", r.label, r.stageLabel(ev.Stage), ev.Percent)
	}
}
