package output

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/sdejongh/reposync/pkg/progress"
)

const (
	progressTemplate = `{{string . "phase"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{string . "desc"}}`
	scanTemplate     = `{{string . "phase"}} {{counters . }} {{cycle . "|" "/" "-" "\\"}} {{string . "desc"}}`

	// maxDescWidth bounds the path shown next to the bar
	maxDescWidth = 48
)

// ProgressReporter draws one progress bar per phase. Callbacks that share
// a phase but come from different sources, such as the two concurrent
// scans, are summed into the same bar.
type ProgressReporter struct {
	out io.Writer

	mu     sync.Mutex
	phase  string
	bar    *pb.ProgressBar
	counts map[string]int
}

// NewProgressReporter creates a reporter drawing on out
func NewProgressReporter(out io.Writer) *ProgressReporter {
	return &ProgressReporter{out: out, counts: make(map[string]int)}
}

// Func returns a progress callback feeding the bar of phase. It never
// cancels; cancellation goes through the context.
func (r *ProgressReporter) Func(phase, source string) progress.Func {
	return func(n, total int, desc string) bool {
		r.update(phase, source, n, total, desc)
		return true
	}
}

func (r *ProgressReporter) update(phase, source string, n, total int, desc string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if phase != r.phase || r.bar == nil {
		r.finishLocked()
		r.start(phase, total)
	}

	r.counts[source] = n
	sum := 0
	for _, c := range r.counts {
		sum += c
	}

	if total >= 0 {
		r.bar.SetTotal(int64(total))
	}
	r.bar.SetCurrent(int64(sum))
	r.bar.Set("desc", shorten(desc, maxDescWidth))
}

func (r *ProgressReporter) start(phase string, total int) {
	tmpl := progressTemplate
	if total == progress.Unknown {
		tmpl = scanTemplate
		total = 0
	}

	bar := pb.New(total)
	bar.SetWriter(r.out)
	bar.SetTemplateString(tmpl)
	bar.Set("phase", phase)
	bar.Set("desc", "")
	bar.SetMaxWidth(120)
	bar.Start()

	r.phase = phase
	r.bar = bar
	r.counts = make(map[string]int)
}

// Finish completes the current bar, if any
func (r *ProgressReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked()
}

func (r *ProgressReporter) finishLocked() {
	if r.bar == nil {
		return
	}
	r.bar.Set("desc", "")
	r.bar.Finish()
	r.bar = nil
	r.phase = ""
}

// shorten keeps the tail of s, which is the informative part of a path
func shorten(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return "..." + string(runes[len(runes)-width+3:])
}
