package main

import (
	"fmt"

	"github.com/smallnest/tenantflow/app"
	"github.com/smallnest/tenantflow/config"
	"github.com/spf13/cobra"
)

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	envFiles   []string
	logLevel   string

	// appOpts are passed to app.New; tests use them to swap collaborators.
	appOpts []app.Option
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{appOpts: opts}

	root := &cobra.Command{
		Use:   "tenantflow",
		Short: "Graph-driven chat, spam triage and data ingestion",
		Long: `tenantflow runs three workflows built on a small state graph engine:
a tool-using chat agent with per-thread memory, a spam triage pipeline and
a batch ingestion pipeline for players, teams, matches and articles.

Settings are read from defaults, then the YAML file given with --config,
then .env files, then TENANTFLOW_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env", nil, "env files to load (default ./.env when present)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log.level (debug, info, warn, error, none)")

	root.AddCommand(
		c.newChatCmd(),
		c.newTriageCmd(),
		c.newIngestCmd(),
		c.newThreadsCmd(),
		c.newServeCmd(),
		c.newGraphCmd(),
		newVersionCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath, c.envFiles...)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// open builds the application for one command. The caller closes it.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, c.appOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tenantflow %s (%s)\n", version, commit)
		},
	}
}
