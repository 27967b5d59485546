// Package tracer records a per-run event log, merges nested child
// traces, and computes aggregate usage (spec 4.6), grounded on the
// teacher's internal/agent/trace.go TracePlugin.
package tracer

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode is the trace filtering setting (spec 4.6 "Filtering").
type Mode string

const (
	ModeOn      Mode = "on"
	ModeOff     Mode = "off"
	ModeOnError Mode = "on_error"
)

// EventKind enumerates the event names in spec 3 "Trace".
type EventKind string

const (
	EventRunStart    EventKind = "run.start"
	EventRunStop     EventKind = "run.stop"
	EventTurnStart   EventKind = "turn.start"
	EventTurnStop    EventKind = "turn.stop"
	EventLLMStart    EventKind = "llm.start"
	EventLLMStop     EventKind = "llm.stop"
	EventToolStart   EventKind = "tool.start"
	EventToolStop    EventKind = "tool.stop"
	EventNestedCall  EventKind = "nested.call"
)

// Event is one record in the trace (spec 4.6 "Record shape").
type Event struct {
	Kind         EventKind      `json:"event"`
	TimestampNS  int64          `json:"timestamp_ns"`
	DurationMS   *float64       `json:"duration_ms,omitempty"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// Collector accumulates events for one run (and, transitively, its
// nested sub-agent runs) in process-local state bound to the logical
// run rather than a process global (spec 9 "Global mutable state").
type Collector struct {
	mu       sync.Mutex
	runID    string
	events   []Event
	mode     Mode
	otel     SpanBridge
}

// SpanBridge optionally mirrors events into an OpenTelemetry tracer
// (SPEC_FULL.md DOMAIN STACK: go.opentelemetry.io/otel). Nil means no
// OTel emission; the JSONL requirement is independent of it.
type SpanBridge interface {
	OnEvent(e Event)
}

func NewCollector(mode Mode, otelBridge SpanBridge) *Collector {
	return &Collector{runID: uuid.NewString(), mode: mode, otel: otelBridge}
}

func (c *Collector) RunID() string { return c.runID }

// Record appends an event with a fresh span ID and returns that span
// ID, for pairing with the matching .stop event via parentSpanID.
func (c *Collector) Record(kind EventKind, parentSpanID string, meta map[string]any) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	span := uuid.NewString()
	e := Event{
		Kind:         kind,
		TimestampNS:  time.Now().UnixNano(),
		SpanID:       span,
		ParentSpanID: parentSpanID,
		Meta:         meta,
	}
	c.events = append(c.events, e)
	if c.otel != nil {
		c.otel.OnEvent(e)
	}
	return span
}

func (c *Collector) RecordStop(kind EventKind, spanID string, startNS int64, meta map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dur := float64(time.Now().UnixNano()-startNS) / 1e6
	e := Event{
		Kind:         kind,
		TimestampNS:  time.Now().UnixNano(),
		DurationMS:   &dur,
		SpanID:       uuid.NewString(),
		ParentSpanID: spanID,
		Meta:         meta,
	}
	c.events = append(c.events, e)
	if c.otel != nil {
		c.otel.OnEvent(e)
	}
}

// Events returns a finalized, timestamp-sorted copy of the event list
// (spec 5 "Ordering guarantees": "the final event list is sorted on
// finalize").
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]Event{}, c.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampNS < out[j].TimestampNS })
	return out
}

// ShouldPersist applies the trace_mode filter (spec 4.6 "Filtering"):
// on_error retains the trace only when the terminal Step was a
// failure.
func (c *Collector) ShouldPersist(terminalFailed bool) bool {
	switch c.mode {
	case ModeOff:
		return false
	case ModeOnError:
		return terminalFailed
	default:
		return true
	}
}

// WithTrace creates a collector, runs fn, and returns it; persistence
// is the caller's responsibility via WriteJSONL, matching spec 4.6's
// "with_trace creates a collector ... and persists the event list".
func WithTrace(mode Mode, otelBridge SpanBridge, fn func(c *Collector) (terminalFailed bool, err error)) (*Collector, error) {
	c := NewCollector(mode, otelBridge)
	failed, err := fn(c)
	if err != nil {
		return c, err
	}
	_ = failed
	return c, nil
}

// WriteJSONL persists the event list as newline-delimited JSON, one
// event record per line, format version implicit v1 (spec 6
// "Persistent state").
func WriteJSONL(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// MergeParallel produces a merged view of a parent collector's events
// plus its children's, with aggregate metadata (spec 4.6
// "merge_parallel"). Each child's events are nested under a
// nested.call wrapper whose parent_span_id is the call site's span.
type MergedTrace struct {
	Events      []Event
	AgentCount  int
	Parallel    bool
	WallTimeMS  float64
	TotalTurns  int
}

func MergeParallel(parent *Collector, callSiteSpanID string, children []*Collector) MergedTrace {
	all := append([]Event{}, parent.Events()...)
	agentCount := 1
	totalTurns := countTurns(parent.Events())
	var minTS, maxTS int64
	for i, e := range all {
		if i == 0 || e.TimestampNS < minTS {
			minTS = e.TimestampNS
		}
		if i == 0 || e.TimestampNS > maxTS {
			maxTS = e.TimestampNS
		}
	}
	for _, child := range children {
		agentCount++
		evs := child.Events()
		totalTurns += countTurns(evs)
		wrapper := Event{
			Kind:         EventNestedCall,
			TimestampNS:  time.Now().UnixNano(),
			SpanID:       uuid.NewString(),
			ParentSpanID: callSiteSpanID,
			Meta:         map[string]any{"child_run_id": child.RunID()},
		}
		all = append(all, wrapper)
		all = append(all, evs...)
		for _, e := range evs {
			if e.TimestampNS < minTS || minTS == 0 {
				minTS = e.TimestampNS
			}
			if e.TimestampNS > maxTS {
				maxTS = e.TimestampNS
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TimestampNS < all[j].TimestampNS })
	return MergedTrace{
		Events:     all,
		AgentCount: agentCount,
		Parallel:   len(children) > 0,
		WallTimeMS: float64(maxTS-minTS) / 1e6,
		TotalTurns: totalTurns,
	}
}

func countTurns(events []Event) int {
	n := 0
	for _, e := range events {
		if e.Kind == EventTurnStart {
			n++
		}
	}
	return n
}

// AggregateUsage computes usage roll-ups from a flat event list (spec
// 4.6 "aggregate_usage").
type UsageAggregate struct {
	Turns      int
	ToolCalls  int
	LLMCalls   int
	WallTimeMS float64
}

func AggregateUsage(events []Event) UsageAggregate {
	var agg UsageAggregate
	var minTS, maxTS int64
	for i, e := range events {
		if i == 0 {
			minTS, maxTS = e.TimestampNS, e.TimestampNS
		}
		if e.TimestampNS < minTS {
			minTS = e.TimestampNS
		}
		if e.TimestampNS > maxTS {
			maxTS = e.TimestampNS
		}
		switch e.Kind {
		case EventTurnStart:
			agg.Turns++
		case EventToolStart:
			agg.ToolCalls++
		case EventLLMStart:
			agg.LLMCalls++
		}
	}
	if len(events) > 0 {
		agg.WallTimeMS = float64(maxTS-minTS) / 1e6
	}
	return agg
}
