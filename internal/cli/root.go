package cli

import (
	"context"
	"fmt"
	"os"

	"voicedesk/config"
	"voicedesk/internal/app"
	"voicedesk/observability"

	"github.com/spf13/cobra"
)

// Version information, set from main via ldflags
var (
	version = "dev"
	commit  = "none"
)

// SetVersionInfo sets the version information
func SetVersionInfo(v, c string) {
	version = v
	commit = c
}

// state is shared by every command of one invocation
type state struct {
	cfg        *config.Config
	jsonOutput bool
}

// NewRootCommand builds the voicedesk command tree
func NewRootCommand() *cobra.Command {
	s := &state{}

	root := &cobra.Command{
		Use:           "voicedesk",
		Short:         "Manage provider keys and billing for voice agents",
		Long:          "voicedesk stores bring-your-own provider keys, validates them against their vendors and reports the resulting per-minute billing.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			s.cfg = cfg
			observability.InitLoggerWithWriter(cmd.ErrOrStderr(), cfg.Production(), observability.ParseLevel(cfg.Log.Level))
			return nil
		},
	}
	root.SetVersionTemplate("voicedesk {{.Version}} (" + commit + ")\n")
	root.PersistentFlags().BoolVar(&s.jsonOutput, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newServeCommand(s),
		newKeysCommand(s),
		newProvidersCommand(s),
		newSummaryCommand(s),
		newPricingCommand(s),
	)
	return root
}

// Execute runs the root command against os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

// Main runs the CLI and exits non-zero on failure
func Main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the App for one command and shuts it down afterwards
func (s *state) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.Build(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown()
	return fn(a)
}
