// Package sandbox runs one Lisp interpreter invocation in isolation
// with hard wall-clock and iteration bounds (spec 4.3). Config.HeapBytes
// is handed to the interpreter's Env, but no evaluation path charges
// allocations against it, so it does not bound memory use.
package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
)

// Fault is the structured failure the executor returns when an
// invocation does not complete with a Step (spec 4.3 "Output").
type Fault struct {
	Kind    lisp.FaultKind
	Message string
	Detail  map[string]any
}

func (f *Fault) Error() string { return string(f.Kind) + ": " + f.Message }

// Config configures one Executor. Grounded on the teacher's
// tools/sandbox.Config / Option functional-options pattern.
type Config struct {
	WallTimeout  time.Duration
	HeapBytes    int64
	Limits       lisp.Limits
	PoolSize     int
	HardIsolation *HardIsolationConfig
}

// HardIsolationConfig holds settings for an OS-level isolation tier
// for tool callbacks. The executor stores it (WithHardIsolation) but
// Run never reads it: set or nil, tool callbacks and the interpreter
// both run in-process.
type HardIsolationConfig struct {
	Enabled    bool
	KernelPath string
	RootfsPath string
}

type Option func(*Config)

func WithWallTimeout(d time.Duration) Option { return func(c *Config) { c.WallTimeout = d } }
func WithHeapBytes(n int64) Option           { return func(c *Config) { c.HeapBytes = n } }
func WithLimits(l lisp.Limits) Option        { return func(c *Config) { c.Limits = l } }
func WithPoolSize(n int) Option              { return func(c *Config) { c.PoolSize = n } }
func WithHardIsolation(h HardIsolationConfig) Option {
	return func(c *Config) { c.HardIsolation = &h }
}

func DefaultConfig() Config {
	return Config{
		WallTimeout: 1 * time.Second,
		HeapBytes:   0,
		Limits:      lisp.DefaultLimits(),
		PoolSize:    4,
	}
}

// Executor runs interpreter invocations. It holds no per-run state;
// a new Env (and therefore a fresh iteration/heap counter) is created
// per Run call.
type Executor struct {
	cfg Config
}

func NewExecutor(opts ...Option) *Executor {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Executor{cfg: cfg}
}

// Invocation is one interpreter run's input (spec 4.3 "Input").
type Invocation struct {
	Program     []lisp.IR
	Context     *lisp.Map
	Memory      *lisp.Map
	Tools       lisp.ToolFn
	Catalog     map[string]bool
	TurnHistory [3]lisp.Value
	// Collector, when non-nil, receives every tool call recorded
	// during this invocation as it happens — the collector-proxy
	// resolution of spec 9's tool-call-telemetry open question.
	Collector func(lisp.ToolCallRecord)
}

// Run executes one interpreter invocation under the configured
// bounds, grounded on agent.Executor.executeWithTimeout's
// context.WithTimeout + goroutine + buffered channel + select +
// deferred recover() pattern.
func (e *Executor) Run(ctx context.Context, inv Invocation) (*lisp.Step, *Fault) {
	timeout := e.cfg.WallTimeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := lisp.NewRootEnv(inv.Context, inv.Memory, wrapTools(inv.Tools, inv.Collector), inv.Catalog, inv.TurnHistory, e.cfg.Limits, e.cfg.HeapBytes)
	if e.cfg.PoolSize > 0 {
		env = lisp.WithPoolSize(env, e.cfg.PoolSize)
	}
	ev := lisp.NewEvaluator(env)

	type outcome struct {
		step  *lisp.Step
		err   error
		panic any
		stack []byte
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panic: r, stack: debug.Stack()}
			}
		}()
		step, err := ev.Run(inv.Program)
		done <- outcome{step: step, err: err}
	}()

	select {
	case res := <-done:
		if res.panic != nil {
			return nil, &Fault{Kind: lisp.FaultCrash, Message: fmt.Sprintf("panic: %v", res.panic), Detail: map[string]any{"stack": string(res.stack)}}
		}
		if res.err != nil {
			return nil, faultFromErr(res.err)
		}
		return res.step, nil
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, &Fault{Kind: lisp.FaultTimeout, Message: "context cancelled"}
		}
		return nil, &Fault{Kind: lisp.FaultTimeout, Message: fmt.Sprintf("execution exceeded wall-clock timeout of %s", timeout)}
	}
}

func faultFromErr(err error) *Fault {
	if fe, ok := err.(*lisp.FaultError); ok {
		return &Fault{Kind: fe.Kind, Message: fe.Message, Detail: fe.Detail}
	}
	if ae, ok := err.(*lisp.AnalysisError); ok {
		return &Fault{Kind: lisp.FaultAnalysisErrorKind, Message: ae.Message, Detail: map[string]any{"form": ae.Form}}
	}
	return &Fault{Kind: lisp.FaultRuntimeError, Message: err.Error()}
}

// wrapTools injects the collector proxy ahead of every tool call so
// telemetry recorded inside the sandbox reaches the parent tracer,
// draining as each call returns rather than only at the end (spec 9
// Open Question 2).
func wrapTools(tools lisp.ToolFn, collect func(lisp.ToolCallRecord)) lisp.ToolFn {
	if tools == nil {
		return nil
	}
	return func(name string, args *lisp.Map) (lisp.Value, error) {
		start := time.Now()
		result, err := tools(name, args)
		if collect != nil {
			collect(lisp.ToolCallRecord{
				Name:       name,
				Args:       args,
				Result:     result,
				Err:        err,
				DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
			})
		}
		return result, err
	}
}
