package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/jxl.go/pkg/config"
	"github.com/jpfielding/jxl.go/pkg/jxl"
	"github.com/jpfielding/jxl.go/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	st := &state{}
	cmd := &cobra.Command{
		Use:           "jxlctl",
		Short:         "a CLI to encode, decode and inspect JPEG XL files",
		Long:          "jxlctl drives libjxl through the jxl.go binding, with pluggable memory managers and parallel runners",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.setup(ctx, cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return st.teardown(ctx, cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewEncodeCmd(ctx, st),
		NewDecodeCmd(ctx, st),
		NewInfoCmd(ctx, st),
		NewPresetCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "rotate logs into this file instead of stderr")
	pf.Bool("log-json", false, "log as json")
	pf.StringP("config", "c", "", "yaml preset, see 'jxlctl preset'")
	pf.Bool("metrics", false, "print memory and runner metrics to stderr when done")
	pf.String("runner", "", "parallel runner (none|pool|threads), overrides the preset")
	pf.Int("workers", 0, "parallel runner workers, 0 picks a default")
	pf.Uint64("memory-limit", 0, "fail libjxl allocations past this many bytes, 0 is unlimited")
	return cmd
}

// state is what the subcommands share once flags and presets are resolved
type state struct {
	cfg     *config.Config
	reg     *prometheus.Registry
	wiring  *wiring
	logFile io.Closer
}

func (s *state) setup(ctx context.Context, cmd *cobra.Command) error {
	s.cfg = config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		s.cfg = cfg
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		s.cfg.Logging.File, _ = flags.GetString("log-file")
	}
	if flags.Changed("log-json") {
		s.cfg.Logging.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("runner") {
		s.cfg.Runner.Kind, _ = flags.GetString("runner")
	}
	if flags.Changed("workers") {
		s.cfg.Runner.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("memory-limit") {
		s.cfg.Memory.LimitBytes, _ = flags.GetUint64("memory-limit")
	}

	// Parse log level
	var level slog.Level
	levelErr := level.UnmarshalText([]byte(strings.ToUpper(s.cfg.Logging.Level)))
	if levelErr != nil {
		level = slog.LevelInfo
	}
	var w io.Writer = os.Stderr
	if s.cfg.Logging.File != "" {
		lf := logging.RotatingWriter(s.cfg.Logging.File, s.cfg.Logging.MaxSizeMB, s.cfg.Logging.MaxBackups, s.cfg.Logging.MaxAgeDays, true)
		s.logFile = lf
		w = lf
	}
	slog.SetDefault(logging.Logger(w, s.cfg.Logging.JSON, level))
	if levelErr != nil {
		slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", s.cfg.Logging.Level, "error", levelErr)
	}

	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.reg = prometheus.NewRegistry()
	wr, err := newWiring(s.cfg, s.reg)
	if err != nil {
		return err
	}
	s.wiring = wr
	slog.DebugContext(ctx, "configured", "runner", s.cfg.Runner.Kind, "workers", s.cfg.Runner.Workers,
		"memory_limit", s.cfg.Memory.LimitBytes, "libjxl", jxl.VersionString())
	return nil
}

func (s *state) teardown(ctx context.Context, cmd *cobra.Command) error {
	defer func() {
		if s.logFile != nil {
			s.logFile.Close()
		}
	}()
	if s.wiring == nil {
		return nil
	}
	stats := s.wiring.tracker.Stats()
	slog.DebugContext(ctx, "memory", "allocs", stats.Allocs, "frees", stats.Frees,
		"failures", stats.Failures, "peak_bytes", stats.PeakBytes)
	if n := s.wiring.tracker.Outstanding(); n != 0 {
		slog.WarnContext(ctx, "libjxl allocations outstanding", "count", n)
	}
	if err := s.wiring.Close(); err != nil {
		slog.WarnContext(ctx, "runner close", "error", err)
	}
	if on, _ := cmd.Flags().GetBool("metrics"); on {
		return printMetrics(os.Stderr, s.reg)
	}
	return nil
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha and libjxl version for this build",
		Long:  "git sha and libjxl version for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s libjxl/%s\n", gitsha, jxl.VersionString())
		},
	}
	return cmd
}

// NewPresetCmd writes the default preset so it can be edited
func NewPresetCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset <path>",
		Short: "write the default yaml preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveConfig(config.DefaultConfig(), args[0]); err != nil {
				return err
			}
			slog.InfoContext(ctx, "preset written", "path", args[0])
			return nil
		},
	}
	return cmd
}
