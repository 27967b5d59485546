package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/llmretry"
	"github.com/nexus-ptc/ptc/internal/prompt"
	promptbuiltin "github.com/nexus-ptc/ptc/internal/prompt/builtin"
	"github.com/nexus-ptc/ptc/internal/sandbox"
	"github.com/nexus-ptc/ptc/internal/signature"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// Loop drives one agent's per-turn state machine (spec 4.4). It holds
// no mutable per-run state; RunMission creates a fresh turnState for
// every invocation so the same Loop is safe to reuse (and to nest).
type Loop struct {
	cfg       Config
	provider  LLMProvider
	assembler *prompt.Assembler
	executor  *sandbox.Executor
	metrics   *Metrics
}

func New(cfg Config, provider LLMProvider) *Loop {
	if cfg.RolesAndRules == "" {
		cfg.RolesAndRules = defaultRolesAndRules
	}
	specs := cfg.LanguageSpecs
	if specs == nil {
		specs = promptbuiltin.Specs
	}
	var metrics *Metrics
	if cfg.MetricsNamespace != "" {
		metrics = NewMetrics(cfg.MetricsNamespace)
	}
	return &Loop{
		cfg:      cfg,
		provider: provider,
		assembler: &prompt.Assembler{
			RolesAndRules:  cfg.RolesAndRules,
			LanguageSpecs:  specs,
			MaxPromptChars: cfg.PromptMaxChars,
		},
		executor: sandbox.NewExecutor(cfg.SandboxOpts...),
		metrics:  metrics,
	}
}

// Metrics returns the Loop's Prometheus registry wrapper, or nil if
// cfg.MetricsNamespace was empty.
func (l *Loop) Metrics() *Metrics { return l.metrics }

const defaultRolesAndRules = `## Role
You are an autonomous agent that completes missions by writing short
programs instead of calling tools one at a time. Follow the language
spec below exactly.`

// Nested carries the shared nesting state a SELF or agent-wrapping
// tool call propagates into a child invocation (spec 4.4 "Nesting").
type Nested struct {
	Depth          int
	RemainingTurns *int
	Deadline       time.Time
}

// RunOptions configures one RunMission call (spec 6 "Run(agent,
// options)").
type RunOptions struct {
	ContextOverride map[string]any
	TraceMode       tracer.Mode
	Nesting         *Nested
}

// RunMission executes the agent end to end and always returns a
// Step — failures are carried in Step.Fail, never as the error
// return, except for construction-time misconfiguration (spec 6
// "the host always returns a Step").
func (l *Loop) RunMission(ctx context.Context, opts RunOptions) *Step {
	depth := 0
	remaining := l.cfg.TurnBudgetInitial
	remainingPtr := &remaining
	deadline := time.Now().Add(l.cfg.MissionTimeout)
	if opts.Nesting != nil {
		depth = opts.Nesting.Depth
		remainingPtr = opts.Nesting.RemainingTurns
		deadline = opts.Nesting.Deadline
	}
	if depth > l.cfg.MaxDepth {
		return terminalFail(ReasonMaxDepthExceeded, fmt.Sprintf("nesting depth %d exceeds max_depth %d", depth, l.cfg.MaxDepth), "", nil)
	}

	traceMode := l.cfg.TraceMode
	if opts.TraceMode != "" {
		traceMode = opts.TraceMode
	}
	coll := tracer.NewCollector(traceMode, nil)

	ctxValues := l.cfg.Context
	mergedContext := map[string]any{}
	if ctxValues != nil {
		for k, v := range ctxValues.Values {
			mergedContext[k] = v
		}
	}
	for k, v := range opts.ContextOverride {
		mergedContext[k] = v
	}
	lispContext, ok := goToLisp(mergedContext).(*lisp.Map)
	if !ok {
		lispContext = lisp.NewMap()
	}

	st := &turnState{
		loop:           l,
		ctx:            lispContext,
		contextPlain:   mergedContext,
		memory:         lisp.NewMap(),
		turn:           1,
		remainingTurns: remainingPtr,
		depth:          depth,
		deadline:       deadline,
		trace:          coll,
		missionStart:   time.Now(),
	}

	span := coll.Record(tracer.EventRunStart, "", nil)
	step := st.run(ctx)
	coll.RecordStop(tracer.EventRunStop, span, st.missionStart.UnixNano(), map[string]any{"failed": step.Fail != nil})
	step.Trace = coll
	step.Usage.DurationMS = elapsedMS(st.missionStart)
	var reason Reason
	if step.Fail != nil {
		reason = step.Fail.Reason
	}
	l.metrics.RecordMission(reason, time.Since(st.missionStart))
	return step
}

// PreviewResult is the dry-run output of Preview (spec 6
// "Preview(agent, options) -> {system, user, message_estimate,
// token_estimate}").
type PreviewResult struct {
	System          string
	User            string
	MessageEstimate int
	TokenEstimate   int
}

// Preview assembles the first-turn system prompt a real RunMission
// would send, without calling the LLM (spec 6 "Preview"). It never
// fails on recoverable conditions; a placeholder/template error is
// returned as a Go error since there is no Step to carry it in.
func (l *Loop) Preview(opts RunOptions) (PreviewResult, error) {
	depth := 0
	remaining := l.cfg.TurnBudgetInitial
	deadline := time.Now().Add(l.cfg.MissionTimeout)
	if opts.Nesting != nil {
		depth = opts.Nesting.Depth
		remaining = *opts.Nesting.RemainingTurns
		deadline = opts.Nesting.Deadline
	}

	ctxValues := l.cfg.Context
	mergedContext := map[string]any{}
	if ctxValues != nil {
		for k, v := range ctxValues.Values {
			mergedContext[k] = v
		}
	}
	for k, v := range opts.ContextOverride {
		mergedContext[k] = v
	}
	lispContext, ok := goToLisp(mergedContext).(*lisp.Map)
	if !ok {
		lispContext = lisp.NewMap()
	}

	st := &turnState{
		loop:           l,
		ctx:            lispContext,
		contextPlain:   mergedContext,
		memory:         lisp.NewMap(),
		turn:           1,
		remainingTurns: &remaining,
		depth:          depth,
		deadline:       deadline,
		trace:          tracer.NewCollector(tracer.ModeOff, nil),
		missionStart:   time.Now(),
	}

	system, _, err := st.buildSystemPrompt()
	if err != nil {
		return PreviewResult{}, err
	}
	messages := st.buildMessages()
	var user string
	if len(messages) > 0 {
		user = messages[len(messages)-1].Content
	}
	return PreviewResult{
		System:          system,
		User:            user,
		MessageEstimate: len(messages) + 1,
		TokenEstimate:   estimateTokens(system) + estimateTokens(user),
	}, nil
}

// turnState is the mutable state threaded through one mission's
// turns (spec 4.4 "Turn state").
type turnState struct {
	loop *Loop

	ctx          *lisp.Map
	contextPlain map[string]any
	memory       *lisp.Map

	turn           int
	remainingTurns *int
	depth          int
	deadline       time.Time
	trace          *tracer.Collector
	missionStart   time.Time

	messages       []Message
	usage          Usage
	lastFail       *Fault
	retriesUsedRV  int // return_validation_failed retries consumed
	history        []prompt.TurnRecord
	turnResults    []lisp.Value // most recent last, feeds *1/*2/*3
}

// recentTurnHistory returns the last up-to-3 turn results in *1/*2/*3
// order (most recent first), padded with Nil.
func (st *turnState) recentTurnHistory() [3]lisp.Value {
	var out [3]lisp.Value
	for i := 0; i < 3; i++ {
		out[i] = lisp.Nil{}
	}
	n := len(st.turnResults)
	for i := 0; i < 3 && i < n; i++ {
		out[i] = st.turnResults[n-1-i]
	}
	return out
}

func (st *turnState) run(ctx context.Context) *Step {
	cfg := st.loop.cfg

	if cfg.ReturnSignature != nil {
		// Nothing to validate here; parsing already happened at
		// Agent construction time (spec 6 "New ... validates
		// configuration").
	}

	for {
		if st.turn > cfg.MaxTurns {
			return st.terminal(ReasonMaxTurnsExceeded, fmt.Sprintf("exceeded max_turns %d", cfg.MaxTurns), "")
		}
		if *st.remainingTurns <= 0 {
			return st.terminal(ReasonTurnBudgetExhausted, "turn budget exhausted", "")
		}
		if !st.deadline.IsZero() && time.Now().After(st.deadline) {
			return st.terminal(ReasonMissionTimeout, "mission deadline exceeded", "")
		}

		turnSpan := st.trace.Record(tracer.EventTurnStart, "", map[string]any{"turn": st.turn})
		step, done := st.runOneTurn(ctx)
		st.trace.RecordStop(tracer.EventTurnStop, turnSpan, time.Now().UnixNano(), map[string]any{"turn": st.turn})
		st.usage.Turns++
		if done {
			step.Usage = st.usage
			return step
		}
		*st.remainingTurns--
		st.turn++
	}
}

func (st *turnState) terminal(reason Reason, msg, op string) *Step {
	s := terminalFail(reason, msg, op, nil)
	s.Usage = st.usage
	s.Turns = st.history2TurnLogs()
	return s
}

func (st *turnState) history2TurnLogs() []TurnLog {
	out := make([]TurnLog, len(st.history))
	for i, h := range st.history {
		out[i] = TurnLog{Turn: h.Turn, Program: h.Program, Prints: h.Prints, Result: h.Result, Failed: h.Failed}
	}
	return out
}

// buildSystemPrompt renders the current turn's system prompt (spec
// 4.5). toolNames is the subset of cfg.Tools callable (non-catalog).
func (st *turnState) buildSystemPrompt() (system string, toolNames []string, err error) {
	cfg := st.loop.cfg
	jsonMode := cfg.OutputMode == ModeJSON
	singleShot := cfg.MaxTurns == 1

	langKey := cfg.LanguageSpecKey
	if langKey == "" {
		if singleShot {
			langKey = "single_shot"
		} else {
			langKey = "multi_turn"
		}
	}

	var toolDescs []prompt.ToolDescriptor
	for _, t := range cfg.Tools {
		sig, _ := signature.Parse(t.Signature)
		toolDescs = append(toolDescs, prompt.ToolDescriptor{
			Name: t.Name, Signature: sig, Description: t.Description, CatalogOnly: t.CatalogOnly,
		})
		if !t.CatalogOnly {
			toolNames = append(toolNames, t.Name)
		}
	}

	var returnType signature.Type
	if cfg.ReturnSignature != nil {
		returnType = cfg.ReturnSignature.Returns
	}

	missionData := map[string]any{}
	for k, v := range st.contextPlain {
		missionData[k] = v
	}
	for k, v := range cfg.MissionData {
		missionData[k] = v
	}

	var ctxSig *signature.MapType
	if cfg.Context != nil {
		ctxSig = cfg.Context.Signature
	}

	system, err = st.loop.assembler.Build(prompt.Request{
		Context:           st.ctx,
		ContextSignature:  ctxSig,
		FieldDescriptions: cfg.FieldDescriptions,
		Tools:             toolDescs,
		LanguageSpecKey:   langKey,
		ReturnType:        returnType,
		JSONMode:          jsonMode,
		Mission:           cfg.Mission,
		MissionData:       missionData,
	})
	return system, toolNames, err
}

// runOneTurn executes steps 2-8 of spec 4.4's per-turn procedure for
// the current turn. done=true means the mission has a terminal Step.
func (st *turnState) runOneTurn(ctx context.Context) (*Step, bool) {
	cfg := st.loop.cfg

	jsonMode := cfg.OutputMode == ModeJSON
	singleShot := cfg.MaxTurns == 1

	system, toolNames, err := st.buildSystemPrompt()
	if err != nil {
		return st.terminal(ReasonPlaceholderUnbound, err.Error(), "template_expansion"), true
	}
	st.usage.SystemPromptTokens = estimateTokens(system)

	messages := st.buildMessages()

	llmStart := time.Now()
	llmSpan := st.trace.Record(tracer.EventLLMStart, "", map[string]any{"turn": st.turn})
	resp, err := llmretry.Do(ctx, cfg.RetryPolicy, classifyLLMError, nil, func(ctx context.Context) (CompletionResponse, error) {
		return st.loop.provider.Complete(ctx, CompletionRequest{
			System:     system,
			Messages:   messages,
			Turn:       st.turn,
			OutputMode: string(cfg.OutputMode),
			ToolNames:  toolNames,
		})
	})
	st.trace.RecordStop(tracer.EventLLMStop, llmSpan, time.Now().UnixNano(), nil)
	st.usage.LLMCalls++
	st.loop.metrics.RecordLLMCall(err == nil, time.Since(llmStart))
	st.loop.metrics.RecordTurn(cfg.OutputMode)
	if err != nil {
		return st.terminal(ReasonLLMError, err.Error(), "llm_call"), true
	}
	if resp.Tokens != nil {
		st.usage.InputTokens += resp.Tokens.Input
		st.usage.OutputTokens += resp.Tokens.Output
	}

	if jsonMode {
		return st.handleJSONTurn(ctx, resp)
	}
	return st.handleLispTurn(ctx, resp, singleShot)
}

func classifyLLMError(err error) (llmretry.Reason, bool) {
	if err == nil {
		return "", false
	}
	if le, ok := err.(*llmErrorKind); ok {
		return le.reason, true
	}
	return llmretry.ReasonServerError, true
}

// llmErrorKind pairs an LLM error with an explicit retry reason. It is
// unexported and nothing in this package constructs one, so a
// provider's error always receives the default server_error
// classification.
type llmErrorKind struct {
	reason llmretry.Reason
	err    error
}

func (e *llmErrorKind) Error() string { return e.err.Error() }

func (st *turnState) buildMessages() []Message {
	out := make([]Message, 0, len(st.messages)+1)
	if st.loop.cfg.CompressHistory && len(st.history) > 0 {
		compressed, stats := prompt.Compress(st.history, st.loop.cfg.CompressionConfig)
		st.usage.TurnsCompressed += stats.TurnsCompressed
		st.usage.PrintlnsDropped += stats.PrintlnsDropped
		st.usage.ToolCallsDropped += stats.ToolCallsDropped
		st.usage.ErrorTurnsCollapsed += stats.ErrorTurnsCollapsed
		out = append(out, Message{Role: "user", Content: compressed})
	} else {
		out = append(out, st.messages...)
	}
	return out
}
