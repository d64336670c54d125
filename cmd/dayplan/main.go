// Command dayplan plans day trips from a local place pool and mints API
// service tokens.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/daytrip/daytrip/internal/bootstrap"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "dayplan",
		Short:         "DayTrip itinerary planner",
		Long:          "dayplan builds one-day itineraries from a pool of candidate places and issues service tokens for the DayTrip API.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			bootstrap.LoadDotEnv(newLogger(cmd, verbose))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(newPlanCmd(&verbose))
	root.AddCommand(newTokenCmd())
	return root
}

// newLogger writes human-readable logs to stderr so stdout stays clean JSON.
func newLogger(cmd *cobra.Command, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
