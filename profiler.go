package vispipe

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Profiler records the duration of named stages and a set of counters for
// the most recent frame.
type Profiler struct {
	scopes map[string]time.Duration
	starts map[string]time.Time
	counts map[string]int
	order  []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		scopes: make(map[string]time.Duration),
		starts: make(map[string]time.Time),
		counts: make(map[string]int),
		order:  make([]string, 0),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.starts[name] = time.Now()
	if _, ok := p.scopes[name]; !ok {
		p.scopes[name] = 0
		p.order = append(p.order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.starts[name]; ok {
		p.scopes[name] = time.Since(start)
		delete(p.starts, name)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.counts[name] = count
}

// Reset zeroes timings and counters but keeps stage order.
func (p *Profiler) Reset() {
	for k := range p.scopes {
		p.scopes[k] = 0
	}
	for k := range p.starts {
		delete(p.starts, k)
	}
	for k := range p.counts {
		delete(p.counts, k)
	}
}

// Timings returns a copy of the stage durations.
func (p *Profiler) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration, len(p.scopes))
	for k, v := range p.scopes {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the recorded timings and counters.
func (p *Profiler) Clone() *Profiler {
	c := NewProfiler()
	for k, v := range p.scopes {
		c.scopes[k] = v
	}
	for k, v := range p.starts {
		c.starts[k] = v
	}
	for k, v := range p.counts {
		c.counts[k] = v
	}
	c.order = append(c.order, p.order...)
	return c
}

func (p *Profiler) Count(name string) int {
	return p.counts[name]
}

func (p *Profiler) Stages() []string {
	return append([]string(nil), p.order...)
}

// String renders stage timings followed by counters as a table.
func (p *Profiler) String() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stage", "CPU time"})

	var total time.Duration
	for _, name := range p.order {
		dur := p.scopes[name]
		total += dur
		table.Append([]string{name, fmt.Sprintf("%.3f ms", float64(dur.Microseconds())/1000.0)})
	}

	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprintf("%d", p.counts[k])})
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%.3f ms", float64(total.Microseconds())/1000.0)})

	table.Render()
	return buf.String()
}
