//go:build (linux || darwin || freebsd) && (amd64 || arm64)

// Command ske runs XNG configurations in the SKE separation kernel emulator.
//
// Usage:
//
//	ske [--libske FILE] [--configuration FILE] run [DURATION]
//	ske [--libske FILE] [--configuration FILE] check
//	ske [--libske FILE] [--configuration FILE] list
//
// DURATION is in seconds; fractions and scientific notation are accepted
// (1e-3 runs for one millisecond). Without it the kernel runs until its own
// termination condition.
package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/obinnaokechukwu/ske"
)

type options struct {
	libFile      string
	configFile   string
	settingsFile string
	verbose      bool

	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ske: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ske",
		Short: "A home for the SKE server",
		Long: `ske loads the Separation Kernel Emulator (SKE) library and uses it to test
an XNG configuration. Partition console output is printed to stdout as
"<partition>: <message>".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.libFile, "libske", "", "SKE library file (default: the embedded library)")
	flags.StringVarP(&opts.configFile, "configuration", "c", defaultConfiguration, "the XNG configuration to execute")
	flags.StringVar(&opts.settingsFile, "settings", defaultSettingsFile, "TOML settings file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd(opts), newCheckCmd(opts), newListCmd(opts))
	return rootCmd
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [duration]",
		Short: "Run the given configuration",
		Long: `Run the configuration. If a duration is given, the configuration runs for
<duration> seconds. Scientific notation is supported, e.g. 1e-3 results in
1 ms run time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := ske.Forever
			if len(args) == 1 {
				var err error
				if d, err = parseDuration(args[0]); err != nil {
					return err
				}
			}

			k, err := opts.openKernel()
			if err != nil {
				return err
			}
			defer opts.closeKernel(k)

			if err := k.Configure(opts.configFile); err != nil {
				return err
			}
			return k.Run(d)
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration by loading it in SKE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := opts.openKernel()
			if err != nil {
				return err
			}
			defer opts.closeKernel(k)

			if err := k.Configure(opts.configFile); err != nil {
				return err
			}
			opts.logger.Info("configuration valid",
				zap.String("configuration", opts.configFile),
				zap.Int("partitions", k.PartitionCount()))
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the partitions of a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := opts.openKernel()
			if err != nil {
				return err
			}
			defer opts.closeKernel(k)

			if err := k.Configure(opts.configFile); err != nil {
				return err
			}
			parts, err := k.Partitions()
			if err != nil {
				return err
			}
			return printPartitions(cmd, parts)
		},
	}
}

func printPartitions(cmd *cobra.Command, parts []ske.PartitionConfig) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTITION\tFLAGS\tPERIOD\tDURATION\tPORTS")
	for _, p := range parts {
		fmt.Fprintf(w, "%s\t%#x\t%d\t%d\t%d\n", p.Name, p.Flags, p.Schedule.Period, p.Schedule.Duration, len(p.Ports))
		for _, port := range p.Ports {
			fmt.Fprintf(w, "  %s\t\t\t\tch=%d %s %s\n", port.Name, port.Channel, port.Type, port.Direction)
		}
	}
	return w.Flush()
}

// init merges the settings file into unset flags and builds the logger.
func (o *options) init(cmd *cobra.Command) error {
	flags := cmd.Flags()
	s, err := loadSettings(o.settingsFile, flags.Changed("settings"))
	if err != nil {
		return err
	}
	if !flags.Changed("libske") && s.LibSke != "" {
		o.libFile = s.LibSke
	}
	if !flags.Changed("configuration") && s.Configuration != "" {
		o.configFile = s.Configuration
	}

	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if o.verbose {
		level = zapcore.DebugLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	if o.logger, err = config.Build(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	ske.SetLogger(o.logger)
	return nil
}

func (o *options) openKernel() (*ske.Kernel, error) {
	if o.libFile == "" {
		return ske.New()
	}
	return ske.LoadFromFile(o.libFile)
}

func (o *options) closeKernel(k *ske.Kernel) {
	if err := k.Close(); err != nil {
		o.logger.Warn("failed to release kernel library", zap.Error(err))
	}
}

// maxSeconds is the longest duration representable as a time.Duration.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// parseDuration converts a duration in (possibly fractional) seconds to a
// time.Duration rounded to whole microseconds, the resolution of KRun.
func parseDuration(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: not a number of seconds", s)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 || secs > maxSeconds {
		return 0, fmt.Errorf("invalid duration %q: must be between 0 and %.0f seconds", s, maxSeconds)
	}
	return time.Duration(math.Round(secs*1e6)) * time.Microsecond, nil
}
