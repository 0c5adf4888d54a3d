package collide

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Profiler keeps the wall time of the last run of each named scope plus a few
// counters. Scopes are listed in the order they were first seen.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	if !slices.Contains(p.Order, name) {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) Stats() string {
	var sb strings.Builder
	sb.WriteString("timings:")
	for _, name := range p.Order {
		ms := float64(p.Scopes[name].Microseconds()) / 1000.0
		fmt.Fprintf(&sb, " %s=%.2fms", name, ms)
	}

	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString(" counts:")
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%d", k, p.Counts[k])
	}
	return sb.String()
}

type profileSchedule struct {
	every int
}

func profilerLogSystem(cmd *Commands, p *Profiler, sched *profileSchedule, log Logger) {
	if (cmd.Frame()+1)%sched.every != 0 {
		return
	}
	log.Infof("frame %d %s", cmd.Frame()+1, p.Stats())
}
