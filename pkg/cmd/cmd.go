package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/krogueintel/blackbox/internal/settings"
	"github.com/krogueintel/blackbox/pkg/cmd/decode"
	"github.com/krogueintel/blackbox/pkg/cmd/options"
	"github.com/krogueintel/blackbox/pkg/cmd/run"
)

const logLevelInfo = "info"

func NewCommand(opts *options.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: fmt.Sprintf("%s is a graphics call recorder", settings.CmdName),
		Long: fmt.Sprintf(`%s records the call stream of a graphics application into
structured binary trace files, rotating and retaining them so that the
moments before a crash survive for offline inspection.`, settings.CmdName),
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(run.NewCommand(opts))
	cmd.AddCommand(decode.NewCommand(opts))

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", logLevelInfo,
		"log level (trace, debug, info, warn, error, fatal, panic)")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := options.NewOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
