// Package cmd builds the cobra commands of every tidyfs binary.
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/config"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
	"github.com/Ning0612/Tidyfs/internal/report"
	"github.com/Ning0612/Tidyfs/internal/service"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// commonOptions are the flags every tool shares
type commonOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
	noProgress bool
	reportPath string
}

func (o *commonOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default: search ./config.yaml, ~/.config/tidyfs, ~/.tidyfs)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "", "log format: text, json")
	flags.BoolVar(&o.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&o.noProgress, "no-progress", false, "disable the progress bar")
	flags.StringVar(&o.reportPath, "report", "", "also write the result as YAML to this file")
}

// newToolCommand creates a root command for one binary
func newToolCommand(use, short, long string, o *commonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(cmd)
	return cmd
}

// session is the per-invocation state shared by the tool commands
type session struct {
	cfg      *config.Config
	printer  *report.Printer
	reporter progress.Reporter
	runner   *service.Runner
	opts     *commonOptions
}

// open loads configuration, applies flag overrides, starts logging and
// opens the runner. The returned session must be closed.
func (o *commonOptions) open(cmd *cobra.Command, apply func(cfg *config.Config)) (*session, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(loggerConfig(cfg, cmd.ErrOrStderr())); err != nil {
		return nil, err
	}

	runner, err := service.NewRunner(cfg)
	if err != nil {
		logger.Shutdown()
		return nil, err
	}

	return &session{
		cfg:      cfg,
		printer:  report.NewPrinter(cmd.OutOrStdout(), o.noColor),
		reporter: o.progressReporter(cmd.ErrOrStderr()),
		runner:   runner,
		opts:     o,
	}, nil
}

func (o *commonOptions) progressReporter(errOut io.Writer) progress.Reporter {
	f, ok := errOut.(*os.File)
	if o.noProgress || !ok {
		return progress.NullReporter{}
	}
	return progress.NewTerminalReporter(f)
}

func loggerConfig(cfg *config.Config, errOut io.Writer) logger.Config {
	lc := logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Format:     logger.ParseFormat(cfg.Log.Format),
		Outputs:    []logger.OutputConfig{{Type: logger.OutputStderr, Writer: errOut}},
		Legacy:     cfg.Log.Legacy,
		RedactHome: cfg.Log.RedactHome,
	}
	if cfg.Log.File.Enabled {
		lc.Outputs = append(lc.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		lc.File = logger.FileConfig{
			Enabled:    true,
			Path:       config.ExpandPath(cfg.Log.File.Path),
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			MaxBackups: cfg.Log.File.MaxBackups,
			Compress:   cfg.Log.File.Compress,
		}
	}
	return lc
}

// Close releases the runner and flushes the logger
func (s *session) Close() {
	progress.Finish(s.reporter)
	if err := s.runner.Close(); err != nil {
		logger.Get().Warn("failed to close run history", "error", err)
	}
	logger.Shutdown()
}

// run executes op under the runner and prints the summary.
// details is exported with --report.
func (s *session) run(ctx context.Context, tool, root, verb string, op service.Operation, details func() any) (service.Outcome, error) {
	outcome, err := s.runner.Run(ctx, tool, root, op)
	progress.Finish(s.reporter)
	if err != nil {
		return outcome, err
	}

	if verb != "" {
		s.printer.Summary(verb, outcome.Tally)
	}

	if s.opts.reportPath != "" {
		var d any
		if details != nil {
			d = details()
		}
		doc := report.NewDocument(tool, outcome.Root, outcome.RunID, outcome.Started, outcome.Tally, d)
		if err := doc.WriteFile(s.opts.reportPath); err != nil {
			return outcome, err
		}
		logger.Get().Info("report written", "path", s.opts.reportPath)
	}
	return outcome, nil
}
