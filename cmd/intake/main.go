// Command intake runs the law-office intake chatbot backend and its operator
// tools.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

type globalFlags struct {
	configPath string
	envFile    string
	llm        string
	dbPath     string
	listen     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "intake",
		Short: "Law-office intake chatbot backend",
		Long: `intake proxies a conversational agent for law-office websites, hides
machine-readable handoff blocks from visitors, and forwards complete client
requests to the office by email, webhook and the local database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(g.envFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/.intake/config.yaml)")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before resolving config")
	pf.StringVar(&g.llm, "llm", "", "upstream agent as provider/model (e.g. openai/gpt-4o-mini)")
	pf.StringVar(&g.dbPath, "db", "", "SQLite database path")

	root.AddCommand(
		newServeCmd(g),
		newMCPCmd(g),
		newExtractCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (g *globalFlags) resolve() (config.ResolvedConfig, error) {
	if g.llm != "" {
		if _, err := llm.ParseLLMFlag(g.llm); err != nil {
			return config.ResolvedConfig{}, err
		}
	}
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: g.configPath,
		CLIListen:  g.listen,
		CLILLM:     g.llm,
		CLIDBPath:  g.dbPath,
	})
}

func (g *globalFlags) settings() (config.Settings, error) {
	resolved, err := g.resolve()
	if err != nil {
		return config.Settings{}, err
	}
	return resolved.Settings()
}

func newLogger(s config.Settings) (*zap.Logger, error) {
	return logging.New(s.Environment, s.LogLevel)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "intake %s\n", version)
		},
	}
}
