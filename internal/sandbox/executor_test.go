package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
)

func compile(t *testing.T, src string) []lisp.IR {
	t.Helper()
	forms, err := lisp.ReadAll(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ir, err := lisp.NewAnalyzer().AnalyzeTopLevel(forms)
	if err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	return ir
}

func TestRunReturnsStepOnSuccess(t *testing.T) {
	exec := NewExecutor()
	step, fault := exec.Run(context.Background(), Invocation{
		Program: compile(t, "(return 42)"),
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
	})
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if !step.HasReturn {
		t.Fatal("expected HasReturn to be true")
	}
	if step.Return.String() != "42" {
		t.Errorf("expected return 42, got %q", step.Return.String())
	}
}

func TestRunEnforcesWallClockTimeout(t *testing.T) {
	slowTool := func(name string, args *lisp.Map) (lisp.Value, error) {
		time.Sleep(100 * time.Millisecond)
		return lisp.Int(1), nil
	}
	exec := NewExecutor(WithWallTimeout(10 * time.Millisecond))
	step, fault := exec.Run(context.Background(), Invocation{
		Program: compile(t, `(return (call "slow" {}))`),
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
		Tools:   slowTool,
		Catalog: map[string]bool{"slow": false},
	})
	if step != nil {
		t.Fatalf("expected no step on timeout, got %+v", step)
	}
	if fault == nil {
		t.Fatal("expected a timeout fault")
	}
	if fault.Kind != lisp.FaultTimeout {
		t.Errorf("expected FaultTimeout, got %v", fault.Kind)
	}
}

func TestRunReturnsFaultOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := NewExecutor(WithWallTimeout(time.Second))
	_, fault := exec.Run(ctx, Invocation{
		Program: compile(t, "(return 1)"),
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
	})
	if fault == nil {
		t.Fatal("expected a fault for a pre-cancelled context")
	}
}

func TestRunNilProgramIsEmptyNoOp(t *testing.T) {
	exec := NewExecutor()
	_, fault := exec.Run(context.Background(), Invocation{
		Program: nil,
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
	})
	if fault != nil {
		t.Fatalf("expected nil program to run as an empty no-op, got fault: %v", fault)
	}
}

func TestRunInvokesToolsAndCollector(t *testing.T) {
	var recorded []lisp.ToolCallRecord
	tools := func(name string, args *lisp.Map) (lisp.Value, error) {
		return lisp.Int(7), nil
	}
	exec := NewExecutor()
	step, fault := exec.Run(context.Background(), Invocation{
		Program: compile(t, `(return (call "lookup" {}))`),
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
		Tools:   tools,
		Catalog: map[string]bool{"lookup": false},
		Collector: func(rec lisp.ToolCallRecord) {
			recorded = append(recorded, rec)
		},
	})
	if fault != nil {
		t.Fatalf("unexpected fault: %v", fault)
	}
	if !step.HasReturn || step.Return.String() != "7" {
		t.Errorf("expected tool-derived return of 7, got %+v", step)
	}
	if len(recorded) != 1 || recorded[0].Name != "lookup" {
		t.Errorf("expected collector to observe the tool call, got %+v", recorded)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	tools := func(name string, args *lisp.Map) (lisp.Value, error) {
		panic("boom")
	}
	exec := NewExecutor()
	step, fault := exec.Run(context.Background(), Invocation{
		Program: compile(t, `(return (call "lookup" {}))`),
		Context: lisp.NewMap(),
		Memory:  lisp.NewMap(),
		Tools:   tools,
		Catalog: map[string]bool{"lookup": false},
	})
	if step != nil {
		t.Fatalf("expected no step after a panic, got %+v", step)
	}
	if fault == nil || fault.Kind != lisp.FaultCrash {
		t.Fatalf("expected a crash fault, got %+v", fault)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WallTimeout != time.Second {
		t.Errorf("unexpected default wall timeout: %v", cfg.WallTimeout)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("unexpected default pool size: %d", cfg.PoolSize)
	}
	if cfg.Limits.IterationHardCap != 10000 {
		t.Errorf("unexpected default iteration hard cap: %d", cfg.Limits.IterationHardCap)
	}
}

func TestWithHardIsolationOption(t *testing.T) {
	exec := NewExecutor(WithHardIsolation(HardIsolationConfig{Enabled: true, KernelPath: "/vm/kernel"}))
	if exec.cfg.HardIsolation == nil || !exec.cfg.HardIsolation.Enabled {
		t.Fatal("expected hard isolation config to be set")
	}
	if exec.cfg.HardIsolation.KernelPath != "/vm/kernel" {
		t.Errorf("unexpected kernel path: %q", exec.cfg.HardIsolation.KernelPath)
	}
}
