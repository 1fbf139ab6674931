package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/intake/internal/config"
	intakemcp "github.com/hurttlocker/intake/internal/mcp"
	"github.com/hurttlocker/intake/internal/pipeline"
	"github.com/hurttlocker/intake/internal/store"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve operator tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := g.resolve()
			if err != nil {
				return err
			}
			st, err := store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			return intakemcp.Serve(intakemcp.NewServer(intakemcp.ServerConfig{
				Store:   st,
				Brands:  resolved.Brands,
				Version: version,
			}))
		},
	}
}

func newExtractCmd(g *globalFlags) *cobra.Command {
	var userMessage, brandKey string

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Run the handoff pipeline on a transcript without dispatching",
		Long: `Reads an assistant transcript from a file (or stdin when no file is given),
runs extraction, normalization and the admission gate, and prints the result
as JSON. Nothing is deduplicated or sent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var brand config.Brand
			if brandKey != "" {
				resolved, err := g.resolve()
				if err != nil {
					return err
				}
				b, ok := resolved.Brands[brandKey]
				if !ok {
					return fmt.Errorf("unknown brand %q", brandKey)
				}
				brand = b
			}

			report := pipeline.Explain(pipeline.Turn{Brand: brand, Raw: raw, UserMessage: userMessage})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&userMessage, "user-message", "", "user message of the same turn, used for inference")
	cmd.Flags().StringVar(&brandKey, "brand", "", "brand key whose addresses are scrubbed from the customer email")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	return string(b), nil
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with value sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := g.resolve()
			if err != nil {
				return err
			}
			printable := maskSecrets(resolved)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(printable); err != nil {
				return err
			}
			if _, err := resolved.Settings(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
}

func maskSecrets(r config.ResolvedConfig) config.ResolvedConfig {
	r.EmailAPIKey = r.EmailAPIKey.Secret()
	r.WebhookSecret = r.WebhookSecret.Secret()
	keys := make(map[string]config.ResolvedValue, len(r.LLMKeys))
	for p, v := range r.LLMKeys {
		keys[p] = v.Secret()
	}
	r.LLMKeys = keys
	return r
}
