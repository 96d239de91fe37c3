package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/covaclient"
)

// Version is set via ldflags at build time.
var Version = "dev"

// cli holds what every subcommand shares.
type cli struct {
	configPath string
	logLevel   string
	server     string

	cfg *config.ClientConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:           "cova",
		Short:         "Cova, your personal AI for insurance documents",
		Long:          "Ask questions about your organisation's documents and read streamed answers with their sources.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", config.ClientConfigPath(), "path to the client config file")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&c.server, "server", "", "backend URL, overrides the config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLoginCmd(c))
	cmd.AddCommand(newQuestionsCmd(c))
	cmd.AddCommand(newNewCmd(c))
	cmd.AddCommand(newChatCmd(c))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cova %s\n", Version)
		},
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	lvl, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadClientConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.server != "" {
		cfg.Server = c.server
	}
	c.cfg = cfg
	return nil
}

func (c *cli) client() *covaclient.Client {
	return covaclient.New(covaclient.WithServerURL(c.cfg.Server), covaclient.WithToken(c.cfg.Token))
}

// authedClient fails early when no login has been stored.
func (c *cli) authedClient() (*covaclient.Client, error) {
	if c.cfg.Token == "" {
		return nil, fmt.Errorf("not logged in, run `cova login` first")
	}
	return c.client(), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
