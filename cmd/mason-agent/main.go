package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"mason-engine/internal/api"
	"mason-engine/internal/config"
	"mason-engine/internal/engine"
	"mason-engine/internal/secrets"
	"mason-engine/internal/session"

	"github.com/spf13/cobra"
)

var flagConfig string

func main() {
	rootCmd := &cobra.Command{
		Use:          "mason-agent",
		Short:        "Mason execution engine agent",
		Long:         "mason-agent tracks execution progress for Mason backlog items and reports lifecycle transitions to the dashboard.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to mason.config.json (default: search upward)")

	rootCmd.AddCommand(newNextCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newCompleteCommand())
	rootCmd.AddCommand(newFailCommand())
	rootCmd.AddCommand(newProgressCommand())
	rootCmd.AddCommand(newSummaryCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newSetKeyCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withEngine runs fn against a fully started engine and shuts it down
// afterwards.
func withEngine(fn func(*engine.Engine) error) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	eng := engine.New(cfg)
	if err := eng.Startup(context.Background()); err != nil {
		return err
	}
	defer eng.Shutdown()

	return fn(eng)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newNextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Fetch the next approved backlog item(s)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			repo, _ := cmd.Flags().GetString("repo")

			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			client, err := api.NewClient(cfg.GetDashboardURL(), cfg.APIKey)
			if err != nil {
				return err
			}

			items, err := client.NextItems(limit, repo)
			if err != nil {
				return err
			}

			return printJSON(map[string]interface{}{"items": items})
		},
	}

	cmd.Flags().IntP("limit", "n", 1, "Number of items to fetch (max 10)")
	cmd.Flags().String("repo", "", "Filter by repository ID")
	return cmd
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <item-id> <branch-name>",
		Short: "Mark an item as in_progress and begin tracking it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, branch := args[0], args[1]

			return withEngine(func(eng *engine.Engine) error {
				client, err := eng.API()
				if err != nil {
					return err
				}

				item, err := client.StartItem(itemID, branch)
				if err != nil {
					return err
				}

				if _, err := eng.Progress().Ensure(itemID, nil); err != nil {
					return err
				}

				state := eng.Sessions().Load(session.CurrentSessionID())
				state.ItemID = itemID
				state.BranchName = branch
				state.Step = "started"
				if err := eng.Sessions().Save(state); err != nil {
					return err
				}

				return printJSON(item)
			})
		},
	}
}

func newCompleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <item-id> <pr-url>",
		Short: "Mark an item as completed with its PR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, prURL := args[0], args[1]

			return withEngine(func(eng *engine.Engine) error {
				client, err := eng.API()
				if err != nil {
					return err
				}

				item, err := client.CompleteItem(itemID, prURL)
				if err != nil {
					return err
				}

				if _, err := eng.Progress().Ensure(itemID, nil); err != nil {
					return err
				}
				if _, err := eng.Progress().Complete(itemID, ""); err != nil {
					return err
				}

				state := eng.Sessions().Load(session.CurrentSessionID())
				state.ItemID = itemID
				state.PRUrl = prURL
				state.Step = "completed"
				if err := eng.Sessions().Save(state); err != nil {
					return err
				}

				return printJSON(item)
			})
		},
	}
}

func newFailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fail <item-id> [message]",
		Short: "Mark an item as failed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID := args[0]
			message := ""
			if len(args) == 2 {
				message = args[1]
			}

			return withEngine(func(eng *engine.Engine) error {
				client, err := eng.API()
				if err != nil {
					return err
				}

				item, err := client.FailItem(itemID, message)
				if err != nil {
					return err
				}

				eng.Progress().Fail(itemID, message)

				state := eng.Sessions().Load(session.CurrentSessionID())
				state.ItemID = itemID
				state.Step = "failed"
				if err := eng.Sessions().Save(state); err != nil {
					return err
				}

				return printJSON(item)
			})
		},
	}
}

func newProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <item-id>",
		Short: "Show the local progress record for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(eng *engine.Engine) error {
				rec, err := eng.Progress().Get(args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <item-id>",
		Short: "Generate the completion summary for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(eng *engine.Engine) error {
				rec, err := eng.Progress().Get(args[0])
				if err != nil {
					return err
				}

				sum, err := eng.Summary().GenerateExecutionSummary(args[0], rec)
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove aged-out progress records and session files now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(eng *engine.Engine) error {
				eng.Janitor().RunOnce()
				fmt.Println("Sweep complete")
				return nil
			})
		},
	}
}

func newSetKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <api-key>",
		Short: "Encrypt and store the dashboard API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			if !secrets.IsInitialized() {
				if err := secrets.Init(); err != nil {
					return fmt.Errorf("failed to initialize encryption: %w", err)
				}
			}

			encrypted, err := secrets.EncryptAPIKey(args[0])
			if err != nil {
				return err
			}

			// Persist only the ciphertext
			cfg.APIKeyEncrypted = encrypted
			cfg.APIKey = ""
			if err := cfg.Save(flagConfig); err != nil {
				return err
			}

			fmt.Printf("API key stored in %s\n", cfg.Path())
			return nil
		},
	}
}
