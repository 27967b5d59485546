package ptc

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-ptc/ptc/internal/agentloop"
	"github.com/nexus-ptc/ptc/internal/llmretry"
	"github.com/nexus-ptc/ptc/internal/prompt"
	"github.com/nexus-ptc/ptc/internal/sandbox"
	"github.com/nexus-ptc/ptc/internal/signature"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// Agent is a built, ready-to-run mission configuration (spec 3
// "Agent"). Build one with New; it is immutable and safe to share
// across concurrent Run calls and to wrap as a tool of another Agent
// via AsTool.
type Agent struct {
	loop *agentloop.Loop
}

// config collects the options New builds an Agent from. It mirrors
// agentloop.Config one level up, in terms callers construct with
// Option functions rather than a struct literal.
type config struct {
	mission           string
	missionData       map[string]any
	contextValues     map[string]any
	contextSignature  string
	returnSignature   string
	tools             []Tool
	outputMode        OutputMode
	fieldDescriptions map[string]string

	maxTurns          int
	retryTurns        int
	turnBudget        int
	maxDepth          int
	missionTimeout    time.Duration
	perTurnTimeout    time.Duration
	memoryLimitBytes  int64
	memoryStrategy    MemoryStrategy
	feedbackMaxChars  int
	promptMaxChars    int
	compressHistory   bool
	compressionConfig prompt.CompressionConfig

	retryPolicy      *llmretry.Policy
	sandboxOpts      []sandbox.Option
	rolesAndRules    string
	traceMode        TraceMode
	metricsNamespace string
}

func defaultConfig() config {
	d := agentloop.DefaultConfig()
	return config{
		outputMode:       OutputMode(d.OutputMode),
		maxTurns:         d.MaxTurns,
		retryTurns:       d.RetryTurns,
		turnBudget:       d.TurnBudgetInitial,
		maxDepth:         d.MaxDepth,
		missionTimeout:   d.MissionTimeout,
		perTurnTimeout:   d.PerTurnTimeout,
		memoryLimitBytes: d.MemoryLimitBytes,
		memoryStrategy:   d.MemoryStrategy,
		feedbackMaxChars:  d.FeedbackMaxChars,
		compressionConfig: d.CompressionConfig,
		traceMode:         TraceMode(d.TraceMode),
	}
}

// Option configures an Agent at construction time.
type Option func(*config)

// WithMission sets the mission prompt template (spec 3 "Agent.prompt").
func WithMission(mission string) Option { return func(c *config) { c.mission = mission } }

// WithMissionData supplies static template data merged under the data
// inventory alongside per-run context (spec 3 "Agent").
func WithMissionData(data map[string]any) Option {
	return func(c *config) { c.missionData = data }
}

// WithContext declares the agent's input data and, optionally, its
// shape as a signature map type string (e.g. "{user_id :int}"); pass
// an empty sig to leave the shape undeclared.
func WithContext(values map[string]any, sig string) Option {
	return func(c *config) {
		c.contextValues = values
		c.contextSignature = sig
	}
}

// WithReturnSignature declares the mission's return contract (spec
// 4.1), e.g. "(query :string) -> {summary :string}". Parsed eagerly
// at New time so a malformed signature fails at build time.
func WithReturnSignature(sig string) Option {
	return func(c *config) { c.returnSignature = sig }
}

// WithTools sets the agent's tool table (spec 3 "Agent.tools" /
// "tool_catalog").
func WithTools(tools ...Tool) Option { return func(c *config) { c.tools = append(c.tools, tools...) } }

// WithOutputMode selects ptc_lisp (default) or json (spec 4.4 "Output
// modes").
func WithOutputMode(mode OutputMode) Option { return func(c *config) { c.outputMode = mode } }

// WithFieldDescriptions attaches human text shown next to context and
// return fields in the generated prompt.
func WithFieldDescriptions(desc map[string]string) Option {
	return func(c *config) { c.fieldDescriptions = desc }
}

// WithMaxTurns caps the number of LLM-then-program turns (spec 3
// "Agent.max_turns"). 1 selects single-shot mode.
func WithMaxTurns(n int) Option { return func(c *config) { c.maxTurns = n } }

// WithRetryTurns caps recoverable-failure retries before the mission
// terminates (spec 3 "Agent.retry_turns").
func WithRetryTurns(n int) Option { return func(c *config) { c.retryTurns = n } }

// WithTurnBudget sets the shared turn counter a mission (and any
// nested SELF/agent-tool calls) draws down from (spec 3
// "Agent.turn_budget").
func WithTurnBudget(n int) Option { return func(c *config) { c.turnBudget = n } }

// WithMaxDepth bounds SELF/nested-agent recursion (spec 3
// "Agent.max_depth", spec 9 "Cyclic references").
func WithMaxDepth(n int) Option { return func(c *config) { c.maxDepth = n } }

// WithMissionTimeout bounds the mission's total wall-clock budget
// (spec 3 "Agent.mission_timeout_ms").
func WithMissionTimeout(d time.Duration) Option { return func(c *config) { c.missionTimeout = d } }

// WithPerTurnTimeout bounds one turn's sandbox execution (spec 3
// "Agent.per_turn_timeout_ms").
func WithPerTurnTimeout(d time.Duration) Option { return func(c *config) { c.perTurnTimeout = d } }

// WithMemoryLimit bounds the persisted cross-turn memory map's
// estimated byte size and picks the overflow policy (spec 3
// "Agent.memory_limit_bytes", "Agent.memory_strategy").
func WithMemoryLimit(bytes int64, strategy MemoryStrategy) Option {
	return func(c *config) {
		c.memoryLimitBytes = bytes
		c.memoryStrategy = strategy
	}
}

// WithFeedbackMaxChars bounds the per-turn prints/memory feedback
// message length (spec 4.4 "per-turn feedback").
func WithFeedbackMaxChars(n int) Option { return func(c *config) { c.feedbackMaxChars = n } }

// WithPromptMaxChars bounds the assembled system prompt's length
// (spec 3 "Agent.prompt_limits").
func WithPromptMaxChars(n int) Option { return func(c *config) { c.promptMaxChars = n } }

// WithHistoryCompression turns on spec 4.5's history compression for
// multi-turn missions, using cfg for its thresholds; an empty cfg
// leaves the defaults in place.
func WithHistoryCompression(on bool, cfg prompt.CompressionConfig) Option {
	return func(c *config) {
		c.compressHistory = on
		c.loadCompression(cfg)
	}
}

func (c *config) loadCompression(cfg prompt.CompressionConfig) {
	if cfg == (prompt.CompressionConfig{}) {
		return
	}
	c.compressionConfig = cfg
}

// WithRetryPolicy overrides the LLM call retry policy (spec 7 "Retry
// policy"); the zero value keeps llmretry.DefaultPolicy.
func WithRetryPolicy(p llmretry.Policy) Option {
	return func(c *config) {
		if p.MaxAttempts == 0 && p.BaseDelay == 0 && p.MaxDelay == 0 && p.Strategy == "" && p.Retryable == nil && !p.Jitter {
			return
		}
		c.retryPolicy = &p
	}
}

// WithSandboxOptions passes through raw sandbox construction options
// (e.g. resource limits) for advanced callers.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(c *config) { c.sandboxOpts = append(c.sandboxOpts, opts...) }
}

// WithRolesAndRules overrides the fixed role/rules preamble every
// prompt opens with (spec 4.2).
func WithRolesAndRules(text string) Option { return func(c *config) { c.rolesAndRules = text } }

// WithTraceMode selects whether a run's trace is retained (spec 4.6).
func WithTraceMode(mode TraceMode) Option { return func(c *config) { c.traceMode = mode } }

// WithMetrics turns on Prometheus instrumentation under namespace for
// the agent's Loop.
func WithMetrics(namespace string) Option { return func(c *config) { c.metricsNamespace = namespace } }

// New builds an Agent, parsing and validating its declared signatures
// up front so a malformed configuration fails here rather than mid
// mission (spec 6 "New(config) -> Agent ... validates configuration").
func New(provider LLMProvider, opts ...Option) (*Agent, error) {
	c := defaultConfig()
	for _, o := range opts {
		o(&c)
	}

	acfg := agentloop.DefaultConfig()
	acfg.Mission = c.mission
	acfg.MissionData = c.missionData
	acfg.OutputMode = agentloop.OutputMode(c.outputMode)
	acfg.FieldDescriptions = prompt.FieldDescriptions(c.fieldDescriptions)
	acfg.MaxTurns = c.maxTurns
	acfg.RetryTurns = c.retryTurns
	acfg.TurnBudgetInitial = c.turnBudget
	acfg.MaxDepth = c.maxDepth
	acfg.MissionTimeout = c.missionTimeout
	acfg.PerTurnTimeout = c.perTurnTimeout
	acfg.MemoryLimitBytes = c.memoryLimitBytes
	acfg.MemoryStrategy = agentloop.MemoryStrategy(c.memoryStrategy)
	acfg.FeedbackMaxChars = c.feedbackMaxChars
	acfg.PromptMaxChars = c.promptMaxChars
	acfg.CompressHistory = c.compressHistory
	acfg.CompressionConfig = c.compressionConfig
	acfg.SandboxOpts = c.sandboxOpts
	acfg.TraceMode = tracer.Mode(c.traceMode)
	acfg.MetricsNamespace = c.metricsNamespace
	if c.rolesAndRules != "" {
		acfg.RolesAndRules = c.rolesAndRules
	}
	if c.retryPolicy != nil {
		acfg.RetryPolicy = *c.retryPolicy
	}

	if c.contextValues != nil || c.contextSignature != "" {
		var sigPtr *signature.MapType
		if c.contextSignature != "" {
			sig, err := signature.Parse(c.contextSignature)
			if err != nil {
				return nil, fmt.Errorf("invalid context signature: %w", err)
			}
			mt, ok := sig.Returns.(signature.MapType)
			if !ok {
				return nil, fmt.Errorf("invalid context signature: must be a map type")
			}
			sigPtr = &mt
		}
		acfg.Context = agentloop.NewContextBundle(c.contextValues, sigPtr)
	}

	if c.returnSignature != "" {
		sig, err := signature.Parse(c.returnSignature)
		if err != nil {
			return nil, fmt.Errorf("invalid return signature: %w", err)
		}
		acfg.ReturnSignature = &sig
	}

	entries := make([]agentloop.ToolEntry, 0, len(c.tools))
	for _, t := range c.tools {
		entries = append(entries, t.entry)
	}
	acfg.Tools = entries

	return &Agent{loop: agentloop.New(acfg, provider)}, nil
}

// RunOption configures one Run/RunOrRaise/Preview call.
type RunOption func(*agentloop.RunOptions)

// WithRunContext overrides or extends the agent's declared context
// for this run only (spec 6 "Run(agent, options)").
func WithRunContext(values map[string]any) RunOption {
	return func(o *agentloop.RunOptions) { o.ContextOverride = values }
}

// WithRunTraceMode overrides the agent's configured trace mode for
// this run only.
func WithRunTraceMode(mode TraceMode) RunOption {
	return func(o *agentloop.RunOptions) { o.TraceMode = tracer.Mode(mode) }
}

func (a *Agent) buildOptions(opts []RunOption) agentloop.RunOptions {
	var o agentloop.RunOptions
	for _, f := range opts {
		f(&o)
	}
	return o
}

// Run drives the agent's turn loop to a terminal Step. A Step is
// always returned; mission failure is carried in Step.Fail, never as
// a Go error (spec 6 "the host always returns a Step").
func (a *Agent) Run(ctx context.Context, opts ...RunOption) *Step {
	return a.loop.RunMission(ctx, a.buildOptions(opts))
}

// MissionError wraps a terminal Step whose Fail is set, for callers
// that prefer Go's error-handling idiom (spec 6 "RunOrRaise").
type MissionError struct {
	Step *Step
}

func (e *MissionError) Error() string {
	if e.Step == nil || e.Step.Fail == nil {
		return "ptc: mission failed"
	}
	return fmt.Sprintf("ptc: mission failed: %s: %s", e.Step.Fail.Reason, e.Step.Fail.Message)
}

// RunOrRaise is Run, but converts a failed Step into a *MissionError
// instead of returning it inline (spec 6 "RunOrRaise").
func (a *Agent) RunOrRaise(ctx context.Context, opts ...RunOption) (*Step, error) {
	step := a.Run(ctx, opts...)
	if step.Fail != nil {
		return step, &MissionError{Step: step}
	}
	return step, nil
}

// AsTool wraps this Agent as a NestedTool under name, for use as an
// entry in another Agent's tool table (spec 9 "Nested(agent)").
func (a *Agent) AsTool(name string, opts ...ToolOption) Tool {
	return NestedTool(name, a, opts...)
}

// Preview assembles the system prompt a real Run would send on its
// first turn, without calling the LLM (spec 6 "Preview(agent,
// options) -> {system, user, message_estimate, token_estimate}").
func (a *Agent) Preview(opts ...RunOption) (PreviewResult, error) {
	return a.loop.Preview(a.buildOptions(opts))
}
