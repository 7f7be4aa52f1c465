package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/quote-feed/internal/app"
	"github.com/YaganovValera/quote-feed/internal/config"
	"github.com/YaganovValera/quote-feed/pkg/configloader"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

func main() {
	var cfgFile string

	root := &cobra.Command{
		Use:           "quote-feed",
		Short:         "Streaming best bid/ask quotes from Poloniex",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return app.Run(ctx, cfg, log)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML); empty means env and defaults only")
	root.Flags().String("log-level", "", "override logging.level")
	root.Flags().String("http-addr", "", "override http.addr")

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, nil)
			if err != nil {
				return err
			}
			return configloader.Print(cmd.OutOrStdout(), cfg.Redacted())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quote-feed:", err)
		os.Exit(1)
	}
}
