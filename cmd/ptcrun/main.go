// Command ptcrun loads an agent definition from YAML and runs it
// once against Anthropic's API, printing the resulting Step.
//
// Usage:
//
//	ptcrun --config agent.yaml
//
// The Anthropic API key is read from ANTHROPIC_API_KEY.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexus-ptc/ptc/internal/agentconfig"
	"github.com/nexus-ptc/ptc/internal/llmprovider"
	"github.com/nexus-ptc/ptc/pkg/ptc"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ptcrun",
		Short:        "Run a Programmatic Tool Calling agent from a YAML definition",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildPreviewCmd())
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		raiseMode  bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent's mission once and print the resulting Step",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := buildAgent(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			if raiseMode {
				step, err := agent.RunOrRaise(ctx)
				if err != nil {
					printStep(out, step)
					return err
				}
				return printStep(out, step)
			}
			return printStep(out, agent.Run(ctx))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agent.yaml", "Path to agent definition YAML")
	cmd.Flags().BoolVar(&raiseMode, "raise", false, "Treat a failed mission as a non-zero exit")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall command timeout")
	return cmd
}

func buildPreviewCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Assemble the first turn's prompt without calling the LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := buildAgent(configPath)
			if err != nil {
				return err
			}
			result, err := agent.Preview()
			if err != nil {
				return err
			}
			payload, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agent.yaml", "Path to agent definition YAML")
	return cmd
}

// buildAgent loads an agent.yaml and wires it to an Anthropic-backed
// LLMProvider. Tools named in the file must have no Go-side
// implementation to build here, since this CLI is a thin demo host:
// anything beyond catalog_only entries requires embedding ptc as a
// library instead.
func buildAgent(configPath string) (*ptc.Agent, error) {
	file, err := agentconfig.Load(configPath)
	if err != nil {
		return nil, err
	}

	opts, err := agentconfig.Options(file, agentconfig.ToolBuilders{})
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	provider, err := llmprovider.NewAnthropic(llmprovider.AnthropicConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	return ptc.New(provider, opts...)
}

func printStep(w interface{ Write([]byte) (int, error) }, step *ptc.Step) error {
	result := map[string]any{
		"usage": step.Usage,
		"turns": len(step.Turns),
	}
	if step.Fail != nil {
		result["fail"] = step.Fail
	}
	if step.Return != nil {
		result["return"] = step.Return.String()
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}
