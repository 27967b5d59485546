package agentloop

import (
	"time"

	"github.com/nexus-ptc/ptc/internal/llmretry"
	"github.com/nexus-ptc/ptc/internal/prompt"
	"github.com/nexus-ptc/ptc/internal/sandbox"
	"github.com/nexus-ptc/ptc/internal/signature"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// MemoryStrategy picks what happens when a turn's memory update
// exceeds MemoryLimitBytes (spec 4.4 step 8).
type MemoryStrategy string

const (
	MemoryStrict   MemoryStrategy = "strict"
	MemoryRollback MemoryStrategy = "rollback"
)

// OutputMode selects the LLM response contract (spec 4.4 "Output
// modes").
type OutputMode string

const (
	ModePTCLisp OutputMode = "ptc_lisp"
	ModeJSON    OutputMode = "json"
)

// Config is the immutable per-agent configuration the loop is built
// from (spec glossary "Agent").
type Config struct {
	Mission           string
	MissionData       map[string]any
	Context           *contextBundle
	ReturnSignature   *signature.Signature // nil = no declared return type
	Tools             []ToolEntry
	OutputMode        OutputMode
	FieldDescriptions prompt.FieldDescriptions
	LanguageSpecKey   string // "" lets the loop derive single_shot/multi_turn

	MaxTurns           int
	RetryTurns         int
	TurnBudgetInitial  int
	MaxDepth           int
	MissionTimeout     time.Duration
	PerTurnTimeout     time.Duration
	MemoryLimitBytes   int64
	MemoryStrategy     MemoryStrategy
	FeedbackMaxChars   int
	PromptMaxChars     int
	CompressHistory    bool
	CompressionConfig  prompt.CompressionConfig

	RetryPolicy llmretry.Policy
	SandboxOpts []sandbox.Option

	RolesAndRules string
	LanguageSpecs map[string]string

	TraceMode tracer.Mode

	// MetricsNamespace, when non-empty, turns on Prometheus
	// instrumentation for the Loop built from this Config.
	MetricsNamespace string
}

// contextBundle carries the agent's input data plus its optional
// declared shape, used by the prompt assembler's data inventory
// section and, for json mode, coercion.
type contextBundle struct {
	Values    map[string]any
	Signature *signature.MapType
}

// NewContextBundle builds the value for Config.Context. sig may be
// nil when the context has no declared shape.
func NewContextBundle(values map[string]any, sig *signature.MapType) *contextBundle {
	return &contextBundle{Values: values, Signature: sig}
}

func DefaultConfig() Config {
	return Config{
		OutputMode:        ModePTCLisp,
		MaxTurns:          10,
		RetryTurns:        1,
		TurnBudgetInitial: 10,
		MaxDepth:          5,
		MissionTimeout:    60 * time.Second,
		PerTurnTimeout:    1 * time.Second,
		MemoryLimitBytes:  1 << 20,
		MemoryStrategy:    MemoryStrict,
		FeedbackMaxChars:  4000,
		CompressHistory:   false,
		CompressionConfig: prompt.DefaultCompressionConfig(),
		RetryPolicy:       llmretry.DefaultPolicy(),
		TraceMode:         tracer.ModeOff,
	}
}
