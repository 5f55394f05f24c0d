// Command portalctl runs the portal and works with posts from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"newstech/pkg/api"
	"newstech/pkg/config"
	"newstech/pkg/logger"
	"newstech/pkg/portal"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	cookie  string
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "NewsTech portal frontend and post tools",
	Long: `portalctl serves the NewsTech portal and lists, publishes and deletes
posts against the configured backend: the remote API or the offline store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("PORTAL_CONFIG"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cookie, "cookie", os.Getenv("PORTAL_COOKIE"), "Cookie header forwarded to the API")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openRuntime loads the config and opens the backend. Interactive commands
// log warnings only unless --verbose is given.
func openRuntime(cmd *cobra.Command, level string) (*portal.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !verbose && level != "" {
		cfg.Log.Level = level
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	return portal.Open(cmd.Context(), cfg, log)
}

// requestContext carries --cookie to the API like a browser request would.
func requestContext(cmd *cobra.Command) context.Context {
	return api.WithCredentials(cmd.Context(), cookie)
}
