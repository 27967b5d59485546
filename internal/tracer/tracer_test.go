package tracer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRecordAndEventsSortedByTimestamp(t *testing.T) {
	c := NewCollector(ModeOn, nil)
	span := c.Record(EventRunStart, "", nil)
	if span == "" {
		t.Fatal("expected a non-empty span id")
	}
	c.RecordStop(EventRunStop, span, 0, nil)

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].TimestampNS < events[i-1].TimestampNS {
			t.Errorf("events not sorted by timestamp at index %d", i)
		}
	}
}

func TestRecordStopSetsDuration(t *testing.T) {
	c := NewCollector(ModeOn, nil)
	span := c.Record(EventToolStart, "", nil)
	c.RecordStop(EventToolStop, span, 0, map[string]any{"tool": "search"})

	events := c.Events()
	var stop *Event
	for i := range events {
		if events[i].Kind == EventToolStop {
			stop = &events[i]
		}
	}
	if stop == nil {
		t.Fatal("expected a tool.stop event")
	}
	if stop.DurationMS == nil {
		t.Fatal("expected duration to be set")
	}
	if stop.ParentSpanID != span {
		t.Errorf("expected parent span id %q, got %q", span, stop.ParentSpanID)
	}
}

func TestShouldPersistRespectsMode(t *testing.T) {
	cases := []struct {
		mode           Mode
		terminalFailed bool
		want           bool
	}{
		{ModeOff, true, false},
		{ModeOff, false, false},
		{ModeOn, false, true},
		{ModeOn, true, true},
		{ModeOnError, false, false},
		{ModeOnError, true, true},
	}
	for _, tc := range cases {
		c := NewCollector(tc.mode, nil)
		if got := c.ShouldPersist(tc.terminalFailed); got != tc.want {
			t.Errorf("mode=%v terminalFailed=%v: got %v, want %v", tc.mode, tc.terminalFailed, got, tc.want)
		}
	}
}

type fakeBridge struct{ events []Event }

func (b *fakeBridge) OnEvent(e Event) { b.events = append(b.events, e) }

func TestOtelBridgeReceivesEvents(t *testing.T) {
	bridge := &fakeBridge{}
	c := NewCollector(ModeOn, bridge)
	span := c.Record(EventLLMStart, "", nil)
	c.RecordStop(EventLLMStop, span, 0, nil)
	if len(bridge.events) != 2 {
		t.Errorf("expected bridge to observe 2 events, got %d", len(bridge.events))
	}
}

func TestWriteJSONLEncodesOneEventPerLine(t *testing.T) {
	c := NewCollector(ModeOn, nil)
	c.Record(EventRunStart, "", map[string]any{"mission": "test"})
	c.Record(EventRunStop, "", nil)

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, c.Events()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("expected valid JSON per line: %v", err)
	}
	if decoded.Kind != EventRunStart {
		t.Errorf("unexpected first event kind: %v", decoded.Kind)
	}
}

func TestMergeParallelNestsChildEvents(t *testing.T) {
	parent := NewCollector(ModeOn, nil)
	parentSpan := parent.Record(EventToolStart, "", nil)
	parent.Record(EventTurnStart, "", nil)

	child := NewCollector(ModeOn, nil)
	child.Record(EventTurnStart, "", nil)
	child.Record(EventTurnStart, "", nil)

	merged := MergeParallel(parent, parentSpan, []*Collector{child})
	if merged.AgentCount != 2 {
		t.Errorf("expected agent count 2, got %d", merged.AgentCount)
	}
	if !merged.Parallel {
		t.Error("expected Parallel to be true with one child")
	}
	if merged.TotalTurns != 3 {
		t.Errorf("expected 3 total turns (1 parent + 2 child), got %d", merged.TotalTurns)
	}

	foundWrapper := false
	for _, e := range merged.Events {
		if e.Kind == EventNestedCall {
			foundWrapper = true
			if e.ParentSpanID != parentSpan {
				t.Errorf("expected nested.call wrapper parented at call site, got %q", e.ParentSpanID)
			}
		}
	}
	if !foundWrapper {
		t.Error("expected a nested.call wrapper event in the merged trace")
	}
}

func TestMergeParallelWithNoChildrenIsNotParallel(t *testing.T) {
	parent := NewCollector(ModeOn, nil)
	parent.Record(EventRunStart, "", nil)
	merged := MergeParallel(parent, "", nil)
	if merged.Parallel {
		t.Error("expected Parallel to be false with no children")
	}
	if merged.AgentCount != 1 {
		t.Errorf("expected agent count 1, got %d", merged.AgentCount)
	}
}

func TestAggregateUsageCountsByKind(t *testing.T) {
	events := []Event{
		{Kind: EventRunStart, TimestampNS: 0},
		{Kind: EventTurnStart, TimestampNS: 1},
		{Kind: EventLLMStart, TimestampNS: 2},
		{Kind: EventToolStart, TimestampNS: 3},
		{Kind: EventToolStart, TimestampNS: 4},
		{Kind: EventTurnStop, TimestampNS: 5},
	}
	agg := AggregateUsage(events)
	if agg.Turns != 1 {
		t.Errorf("expected 1 turn, got %d", agg.Turns)
	}
	if agg.ToolCalls != 2 {
		t.Errorf("expected 2 tool calls, got %d", agg.ToolCalls)
	}
	if agg.LLMCalls != 1 {
		t.Errorf("expected 1 llm call, got %d", agg.LLMCalls)
	}
	if agg.WallTimeMS <= 0 {
		t.Error("expected a positive wall time")
	}
}

func TestAggregateUsageEmptyEvents(t *testing.T) {
	agg := AggregateUsage(nil)
	if agg.Turns != 0 || agg.ToolCalls != 0 || agg.LLMCalls != 0 || agg.WallTimeMS != 0 {
		t.Errorf("expected zero-value aggregate for no events, got %+v", agg)
	}
}

func TestWithTraceRunsFnAndReturnsCollector(t *testing.T) {
	c, err := WithTrace(ModeOn, nil, func(c *Collector) (bool, error) {
		c.Record(EventRunStart, "", nil)
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Events()) != 1 {
		t.Errorf("expected 1 event recorded via WithTrace, got %d", len(c.Events()))
	}
}

func TestRunIDIsUniquePerCollector(t *testing.T) {
	a := NewCollector(ModeOn, nil)
	b := NewCollector(ModeOn, nil)
	if a.RunID() == b.RunID() {
		t.Error("expected distinct collectors to have distinct run ids")
	}
}
