// PharmaCore: batch inventory and dispensing for a clinic pharmacy.
//
// Running the binary without a subcommand opens the pharmacy console. The
// subcommands expose the same stock and dispensing operations for scripts
// and operators working from a shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/tui"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
	operator   string
	at         string
}

var opts globalOptions

var rootCmd = &cobra.Command{
	Use:   "pharmacore",
	Short: "Batch inventory and dispensing for a clinic pharmacy",
	Long: `PharmaCore tracks medicine stock per batch with an auditable ledger and
runs the prescription dispense workflow. Without a subcommand it opens the
pharmacy console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConsole,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.operator, "operator", os.Getenv("USER"), "operator recorded on ledger rows and workflow steps")
	flags.StringVar(&opts.at, "at", "", "run against a fixed date (YYYY-MM-DD) instead of the wall clock")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and exit",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "PharmaCore version %s (built %s)\n", Version, BuildTime)
	},
}

func main() {
	tui.Version = Version
	tui.BuildTime = BuildTime

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		// Force exit if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			slog.Error("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", models.UserMessage(err))
		os.Exit(1)
	}
}
