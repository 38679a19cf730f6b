package run

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/krogueintel/blackbox/internal/config"
	"github.com/krogueintel/blackbox/internal/settings"
	"github.com/krogueintel/blackbox/pkg/cmd/options"
)

const CmdName = "run"

type Options struct {
	filePrefix string
	outputDir  string

	maxFileSize int64
	maxFrames   uint
	retention   int

	configPath string

	*options.Options
}

func NewCommand(opts *options.Options) *cobra.Command {
	o := new(Options)
	o.Options = opts

	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [flags] -- command [args...]", CmdName),
		Short: "Run a program with call recording enabled",
		Long: fmt.Sprintf(`
%s launches a program with the recording environment prepared, so that
the interception layer inside the process writes trace files according
to the given rotation and retention settings.
`, CmdName),
		DisableAutoGenTag: true,
		Args:              cobra.MinimumNArgs(1),
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.filePrefix, "output", "o", defaults.FilePrefix, "Prefix for the trace file names")
	cmd.Flags().StringVar(&o.outputDir, "dir", "", "Directory the trace files are written to")
	cmd.Flags().Int64Var(&o.maxFileSize, "max-filesize", defaults.MaxFileSize, "File size threshold before a new trace file is started")
	cmd.Flags().UintVar(&o.maxFrames, "max-frames", defaults.MaxFrames, "Presentation boundaries per session before the session is replaced")
	cmd.Flags().IntVarP(&o.retention, "keep-most-recent", "k", defaults.Retention, "Keep only the N most recent per-call trace files (0 keeps everything)")
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", fmt.Sprintf("Path to a %s YAML configuration file", settings.CmdName))

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	cfg, err := o.buildConfig(cmd)
	if err != nil {
		return err
	}

	target := exec.CommandContext(o.Ctx, args[0], args[1:]...)
	target.Stdin = os.Stdin
	target.Stdout = os.Stdout
	target.Stderr = os.Stderr
	target.Env = append(os.Environ(), cfg.Environ()...)

	o.Logger.Debug().Str("command", args[0]).Str("prefix", cfg.FilePrefix).Msg("launching target")

	if err := target.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		return errors.Wrapf(err, "failed to run %s", args[0])
	}

	return nil
}

func (o *Options) buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()

	if o.configPath != "" {
		var err error
		cfg, err = cfg.LoadFile(o.configPath)
		if err != nil {
			return cfg, errors.Wrap(err, "failed to load config file")
		}
	}

	// Explicit flags win over both the environment and the file.
	if cmd.Flags().Changed("output") {
		cfg.FilePrefix = o.filePrefix
	}
	if cmd.Flags().Changed("dir") {
		cfg.OutputDir = o.outputDir
	}
	if cmd.Flags().Changed("max-filesize") {
		cfg.MaxFileSize = o.maxFileSize
	}
	if cmd.Flags().Changed("max-frames") {
		cfg.MaxFrames = o.maxFrames
	}
	if cmd.Flags().Changed("keep-most-recent") {
		cfg.Retention = o.retention
	}

	if cfg.OutputDir != "" {
		cfg.FilePrefix = filepath.Join(cfg.OutputDir, filepath.Base(cfg.FilePrefix))
	}

	return cfg, nil
}
