// Package report renders operator-facing progress and diagnostic output.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level string

const (
	LevelHeader  Level = "header"
	LevelSection Level = "section"
	LevelStep    Level = "step"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Reporter receives human-readable progress lines.
type Reporter interface {
	Header(format string, args ...any)
	Section(format string, args ...any)
	Step(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Info(format string, args ...any)
}

// Console writes colored lines to an io.Writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	header  func(a ...interface{}) string
	section func(a ...interface{}) string
	step    func(a ...interface{}) string
	success func(a ...interface{}) string
	warn    func(a ...interface{}) string
	failure func(a ...interface{}) string
}

func NewConsole(out io.Writer, noColor bool) *Console {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return &Console{
		out:     out,
		header:  mk(color.FgMagenta, color.Bold),
		section: mk(color.Bold),
		step:    mk(color.FgBlue),
		success: mk(color.FgGreen),
		warn:    mk(color.FgYellow),
		failure: mk(color.FgRed),
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) Header(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.println(c.header(msg))
	c.println(strings.Repeat("=", 50))
}

func (c *Console) Section(format string, args ...any) {
	c.println("\n" + c.section(fmt.Sprintf(format, args...)))
}

func (c *Console) Step(format string, args ...any) {
	c.println("\n" + c.step("==> "+fmt.Sprintf(format, args...)))
}

func (c *Console) Success(format string, args ...any) {
	c.println(c.success("✓ " + fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...any) {
	c.println(c.warn("⚠ " + fmt.Sprintf(format, args...)))
}

func (c *Console) Error(format string, args ...any) {
	c.println(c.failure("✗ " + fmt.Sprintf(format, args...)))
}

func (c *Console) Info(format string, args ...any) {
	c.println(fmt.Sprintf(format, args...))
}

type Line struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Recorder keeps every line in memory and forwards new lines to subscribers.
type Recorder struct {
	mu     sync.Mutex
	lines  []Line
	subs   map[int]chan Line
	nextID int
	closed bool
	now    func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{subs: make(map[int]chan Line), now: time.Now}
}

func (r *Recorder) add(level Level, format string, args ...any) {
	line := Line{Level: level, Text: fmt.Sprintf(format, args...), Time: r.now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	for _, ch := range r.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (r *Recorder) Header(format string, args ...any)  { r.add(LevelHeader, format, args...) }
func (r *Recorder) Section(format string, args ...any) { r.add(LevelSection, format, args...) }
func (r *Recorder) Step(format string, args ...any)    { r.add(LevelStep, format, args...) }
func (r *Recorder) Success(format string, args ...any) { r.add(LevelSuccess, format, args...) }
func (r *Recorder) Warn(format string, args ...any)    { r.add(LevelWarn, format, args...) }
func (r *Recorder) Error(format string, args ...any)   { r.add(LevelError, format, args...) }
func (r *Recorder) Info(format string, args ...any)    { r.add(LevelInfo, format, args...) }

// Lines returns a copy of everything recorded so far.
func (r *Recorder) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

// Texts returns the recorded lines without metadata.
func (r *Recorder) Texts() []string {
	lines := r.Lines()
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// Subscribe returns the backlog and a channel receiving later lines. The
// channel is closed by Close or by the returned cancel func. Slow
// subscribers drop lines rather than block the producer.
func (r *Recorder) Subscribe(buffer int) ([]Line, <-chan Line, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Line, buffer)
	backlog := append([]Line(nil), r.lines...)
	if r.closed {
		close(ch)
		return backlog, ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return backlog, ch, cancel
}

// Close ends every subscription. Lines added afterwards are still recorded.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// Multi fans every call out to several reporters.
type Multi []Reporter

func (m Multi) Header(format string, args ...any) {
	for _, r := range m {
		r.Header(format, args...)
	}
}

func (m Multi) Section(format string, args ...any) {
	for _, r := range m {
		r.Section(format, args...)
	}
}

func (m Multi) Step(format string, args ...any) {
	for _, r := range m {
		r.Step(format, args...)
	}
}

func (m Multi) Success(format string, args ...any) {
	for _, r := range m {
		r.Success(format, args...)
	}
}

func (m Multi) Warn(format string, args ...any) {
	for _, r := range m {
		r.Warn(format, args...)
	}
}

func (m Multi) Error(format string, args ...any) {
	for _, r := range m {
		r.Error(format, args...)
	}
}

func (m Multi) Info(format string, args ...any) {
	for _, r := range m {
		r.Info(format, args...)
	}
}
