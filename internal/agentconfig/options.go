package agentconfig

import (
	"fmt"
	"time"

	"github.com/nexus-ptc/ptc/internal/llmretry"
	"github.com/nexus-ptc/ptc/internal/prompt"
	"github.com/nexus-ptc/ptc/pkg/ptc"
)

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func ptcCompressionConfig() prompt.CompressionConfig { return prompt.DefaultCompressionConfig() }

// ToolBuilders lets a caller supply the Go implementations a ToolSpec
// cannot name (the function behind a plain/typed tool). Keyed by
// ToolSpec.Name; only a catalog_only spec may have no builder (see
// Options).
type ToolBuilders map[string]ptc.ToolFunc

// Options converts a loaded File into the ptc.Option list New
// expects, resolving each ToolSpec against builders. A ToolSpec whose
// name has no entry in builders and isn't catalog_only is an error:
// the config promised a callable tool the host never supplied.
func Options(f *File, builders ToolBuilders) ([]ptc.Option, error) {
	var opts []ptc.Option

	if f.Mission != "" {
		opts = append(opts, ptc.WithMission(f.Mission))
	}
	if len(f.MissionData) > 0 {
		opts = append(opts, ptc.WithMissionData(f.MissionData))
	}
	if len(f.Context.Values) > 0 || f.Context.Signature != "" {
		opts = append(opts, ptc.WithContext(f.Context.Values, f.Context.Signature))
	}
	if f.ReturnSignature != "" {
		opts = append(opts, ptc.WithReturnSignature(f.ReturnSignature))
	}
	if len(f.FieldDescriptions) > 0 {
		opts = append(opts, ptc.WithFieldDescriptions(f.FieldDescriptions))
	}
	if f.OutputMode == "json" {
		opts = append(opts, ptc.WithOutputMode(ptc.JSON))
	}
	if f.MaxTurns > 0 {
		opts = append(opts, ptc.WithMaxTurns(f.MaxTurns))
	}
	if f.RetryTurns > 0 {
		opts = append(opts, ptc.WithRetryTurns(f.RetryTurns))
	}
	if f.TurnBudget > 0 {
		opts = append(opts, ptc.WithTurnBudget(f.TurnBudget))
	}
	if f.MaxDepth > 0 {
		opts = append(opts, ptc.WithMaxDepth(f.MaxDepth))
	}
	if d := f.missionTimeout(); d > 0 {
		opts = append(opts, ptc.WithMissionTimeout(d))
	}
	if d := f.perTurnTimeout(); d > 0 {
		opts = append(opts, ptc.WithPerTurnTimeout(d))
	}
	if f.MemoryLimitBytes > 0 {
		strategy := ptc.MemoryStrict
		if f.MemoryStrategy == "rollback" {
			strategy = ptc.MemoryRollback
		}
		opts = append(opts, ptc.WithMemoryLimit(f.MemoryLimitBytes, strategy))
	}
	if f.FeedbackMaxChars > 0 {
		opts = append(opts, ptc.WithFeedbackMaxChars(f.FeedbackMaxChars))
	}
	if f.PromptMaxChars > 0 {
		opts = append(opts, ptc.WithPromptMaxChars(f.PromptMaxChars))
	}
	if f.CompressHistory {
		opts = append(opts, ptc.WithHistoryCompression(true, ptcCompressionConfig()))
	}
	if f.RolesAndRules != "" {
		opts = append(opts, ptc.WithRolesAndRules(f.RolesAndRules))
	}
	if f.TraceMode != "" {
		mode, err := parseTraceMode(f.TraceMode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ptc.WithTraceMode(mode))
	}
	if f.MetricsNamespace != "" {
		opts = append(opts, ptc.WithMetrics(f.MetricsNamespace))
	}
	if policy := f.LLMRetry.toPolicy(); policy != nil {
		opts = append(opts, ptc.WithRetryPolicy(*policy))
	}

	tools, err := buildTools(f.Tools, builders)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		opts = append(opts, ptc.WithTools(tools...))
	}

	return opts, nil
}

func buildTools(specs []ToolSpec, builders ToolBuilders) ([]ptc.Tool, error) {
	tools := make([]ptc.Tool, 0, len(specs))
	for _, spec := range specs {
		fn := builders[spec.Name]
		if fn == nil && !spec.CatalogOnly {
			return nil, fmt.Errorf("agent config: tool %q has no implementation in builders", spec.Name)
		}
		var toolOpts []ptc.ToolOption
		if spec.Description != "" {
			toolOpts = append(toolOpts, ptc.WithDescription(spec.Description))
		}
		if spec.CatalogOnly {
			toolOpts = append(toolOpts, ptc.CatalogOnly())
		}
		if spec.Signature != "" {
			tools = append(tools, ptc.TypedTool(spec.Name, spec.Signature, fn, toolOpts...))
		} else {
			tools = append(tools, ptc.PlainTool(spec.Name, fn, toolOpts...))
		}
	}
	return tools, nil
}

func parseTraceMode(s string) (ptc.TraceMode, error) {
	switch s {
	case "off":
		return ptc.TraceOff, nil
	case "on":
		return ptc.TraceOn, nil
	case "on_error":
		return ptc.TraceOnError, nil
	default:
		return "", fmt.Errorf("agent config: invalid trace_mode %q", s)
	}
}

func (r LLMRetrySpec) toPolicy() *llmretry.Policy {
	if r.MaxAttempts <= 0 && r.BaseDelayMS <= 0 && r.MaxDelayMS <= 0 && r.Strategy == "" {
		return nil
	}
	p := llmretry.DefaultPolicy()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelayMS > 0 {
		p.BaseDelay = msToDuration(r.BaseDelayMS)
	}
	if r.MaxDelayMS > 0 {
		p.MaxDelay = msToDuration(r.MaxDelayMS)
	}
	switch r.Strategy {
	case "linear":
		p.Strategy = llmretry.Linear
	case "constant":
		p.Strategy = llmretry.Constant
	case "exponential", "":
		p.Strategy = llmretry.Exponential
	}
	return &p
}
