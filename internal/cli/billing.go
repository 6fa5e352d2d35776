package cli

import (
	"fmt"

	"voicedesk/internal/app"
	"voicedesk/internal/settings"

	"github.com/spf13/cobra"
)

func newSummaryCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the billing mode of each category and the estimated cost per minute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				summary := a.Summary()
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
}

func newPricingCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "pricing",
		Short: "Show the platform price schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				p := a.Pricing()
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), p)
				}

				t := newTable("CATEGORY", "USD/MIN")
				for _, c := range p.Categories {
					t.Row(c.DisplayName, fmt.Sprintf("%.3f", c.CostPerMinute))
				}
				t.Row("Platform fee", fmt.Sprintf("%.3f", p.PlatformFee))
				fmt.Fprintln(cmd.OutOrStdout(), t.String())
				fmt.Fprintf(cmd.OutOrStdout(), "All platform: $%.3f/min. Categories on your own keys are not charged.\n", p.AllPlatform)
				return nil
			})
		},
	}
}

func newProvidersCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the vendors keys can be validated against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vendors := settings.Vendors()
			if s.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), vendors)
			}

			t := newTable("CATEGORY", "PROVIDER", "NAME", "DESCRIPTION")
			for _, v := range vendors {
				t.Row(string(v.Category), v.Name, v.DisplayName, v.Description)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}
