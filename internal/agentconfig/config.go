// Package agentconfig loads an Agent's declarative configuration from
// YAML (spec 3 "Agent"), grounded on the teacher's internal/config
// package: one struct tree tagged with `yaml:"..."`, decoded with
// gopkg.in/yaml.v3 and KnownFields(true) so a typo'd key fails loudly
// instead of silently defaulting.
package agentconfig

import "time"

// File is the top-level shape of an agent definition file.
type File struct {
	Mission           string            `yaml:"mission"`
	MissionData       map[string]any    `yaml:"mission_data"`
	Context           ContextSpec       `yaml:"context"`
	ReturnSignature   string            `yaml:"return_signature"`
	Tools             []ToolSpec        `yaml:"tools"`
	OutputMode        string            `yaml:"output_mode"` // "ptc_lisp" (default) or "json"
	FieldDescriptions map[string]string `yaml:"field_descriptions"`

	MaxTurns          int    `yaml:"max_turns"`
	RetryTurns        int    `yaml:"retry_turns"`
	TurnBudget        int    `yaml:"turn_budget"`
	MaxDepth          int    `yaml:"max_depth"`
	MissionTimeoutMS  int    `yaml:"mission_timeout_ms"`
	PerTurnTimeoutMS  int    `yaml:"per_turn_timeout_ms"`
	MemoryLimitBytes  int64  `yaml:"memory_limit_bytes"`
	MemoryStrategy    string `yaml:"memory_strategy"` // "strict" (default) or "rollback"
	FeedbackMaxChars  int    `yaml:"feedback_max_chars"`
	PromptMaxChars    int    `yaml:"prompt_max_chars"`
	CompressHistory   bool   `yaml:"compress_history"`

	RolesAndRules    string `yaml:"roles_and_rules"`
	TraceMode        string `yaml:"trace_mode"` // "off" (default), "on", "on_error"
	MetricsNamespace string `yaml:"metrics_namespace"`

	LLMRetry LLMRetrySpec `yaml:"llm_retry"`
}

// ContextSpec declares the agent's input data and, optionally, its
// shape (spec 3 "Agent.context" / Signature AST "context").
type ContextSpec struct {
	Values    map[string]any `yaml:"values"`
	Signature string         `yaml:"signature"`
}

// ToolSpec declares one plain or typed tool entry (spec 3 "Tool").
// Nested-agent and llm_judge tools are wired in code, not YAML, since
// they reference Go values (another *ptc.Agent, a ToolFunc) a config
// file cannot name.
type ToolSpec struct {
	Name        string `yaml:"name"`
	Signature   string `yaml:"signature"` // empty = ToolPlain, non-empty = ToolTyped
	Description string `yaml:"description"`
	CatalogOnly bool   `yaml:"catalog_only"`
}

// LLMRetrySpec overrides the default LLM-call retry policy (spec 7
// "Retry policy"). Zero values leave llmretry.DefaultPolicy in place.
type LLMRetrySpec struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelayMS int    `yaml:"base_delay_ms"`
	MaxDelayMS  int    `yaml:"max_delay_ms"`
	Strategy    string `yaml:"strategy"` // "exponential" (default), "linear", "constant"
}

func (f *File) missionTimeout() time.Duration {
	if f.MissionTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(f.MissionTimeoutMS) * time.Millisecond
}

func (f *File) perTurnTimeout() time.Duration {
	if f.PerTurnTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(f.PerTurnTimeoutMS) * time.Millisecond
}
