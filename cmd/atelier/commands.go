package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/config"
	agentSvc "atelier/internal/service/agent"
	"atelier/internal/service/agent/tools"
	"atelier/internal/service/agent/tools/browser"
	"atelier/migrations"
)

func migrateCMD() *cobra.Command {
	var direction string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL not configured")
			}
			return migrations.Run(cfg.DatabaseURL, cfg.TablePrefix, direction, steps)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}

func contextsCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Inspect and maintain agent contexts",
	}

	var agentName string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List contexts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			contexts, err := a.contexts.ListContexts(cmd.Context(), agentName, limit)
			if err != nil {
				return err
			}
			return printJSON(contexts)
		},
	}
	list.Flags().StringVar(&agentName, "agent", "", "filter by agent name")
	list.Flags().IntVar(&limit, "limit", 20, "max contexts to return")

	show := &cobra.Command{
		Use:   "show <context-id>",
		Short: "Show a context with its messages, tool call stats and references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			c, err := a.contexts.GetContext(ctx, args[0])
			if err != nil {
				return err
			}
			messages, err := a.contexts.Messages(ctx, c.ID, "")
			if err != nil {
				return err
			}
			stats, err := a.contexts.ToolCallStatistics(ctx, c.ID)
			if err != nil {
				return err
			}
			cards, err := a.contexts.ReferenceCards(ctx, c.ID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"context":    c,
				"messages":   messages,
				"tool_calls": stats,
				"references": cards,
			})
		},
	}

	var olderThan time.Duration
	reap := &cobra.Command{
		Use:   "reap",
		Short: "Fail tool calls abandoned mid-execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			count, err := a.contexts.FailStaleToolCalls(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("failed %d stale tool calls\n", count)
			return nil
		},
	}
	reap.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "age past which an executing call is stale")

	cmd.AddCommand(list, show, reap)
	return cmd
}

func crawlCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Run a recorded browsing pass over a page and print its references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			agents, err := config.LoadAgents(a.cfg.AgentsConfigPath)
			if err != nil {
				return err
			}
			def, ok := config.FindAgent(agents, "research_assistant")
			if !ok {
				return fmt.Errorf("research_assistant agent not defined")
			}

			c, err := a.contexts.CreateContext(ctx, &agentSvc.CreateContextRequest{
				AgentName:    def.Name,
				ActionName:   "crawl",
				Instructions: def.Instructions,
			})
			if err != nil {
				return err
			}
			if err := a.contexts.MarkProcessing(ctx, c.ID); err != nil {
				return err
			}

			session, err := browser.NewSession(ctx, browser.Options{Headless: a.cfg.BrowserHeadless})
			if err != nil {
				return err
			}
			defer session.Close()

			a.recorder.Bind(c.ID, def.ExtractsReferences)
			defer a.recorder.Unbind()

			registry := agentSvc.NewRecordingRegistry(a.recorder)
			browser.RegisterTools(registry, session)

			calls := []tools.ToolCall{
				{Name: "navigate", Input: map[string]any{"url": args[0]}},
				{Name: "extract_main_content", Input: map[string]any{}},
				{Name: "extract_links", Input: map[string]any{}},
			}
			for _, result := range registry.ExecuteSequential(ctx, calls) {
				if result.IsError {
					a.logger.Error("tool call failed", "tool", result.Name, "error", result.Error)
				}
			}

			if _, err := a.enricher.EnrichContext(ctx, c.ID); err != nil {
				return err
			}

			stats, err := a.contexts.ToolCallStatistics(ctx, c.ID)
			if err != nil {
				return err
			}
			cards, err := a.contexts.ReferenceCards(ctx, c.ID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"context_id": c.ID,
				"tool_calls": stats,
				"references": cards,
			})
		},
	}
	return cmd
}

func detectCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Detect linked references in a markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(agentSvc.DetectReferences(string(data)))
		},
	}
}

func fetchMetadataCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-metadata <context-id>",
		Short: "Fetch page metadata for a context's pending references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			count, err := a.enricher.EnrichContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("fetched metadata for %d references\n", count)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
