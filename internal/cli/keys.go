package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"voicedesk/internal/app"

	"github.com/spf13/cobra"
)

func newKeysCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider keys",
	}
	cmd.AddCommand(
		newKeysListCommand(s),
		newKeysAddCommand(s),
		newKeysRemoveCommand(s),
		newKeysActivateCommand(s),
		newKeysValidateCommand(s),
	)
	return cmd
}

func newKeysListCommand(s *state) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored provider keys",
		Long:  "List stored provider keys with their secrets masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				keys, err := a.ListKeys(category)
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), keys)
				}
				printKeys(cmd.OutOrStdout(), keys)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only show keys of this category (llm, stt, tts, telephony)")
	return cmd
}

func newKeysAddCommand(s *state) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "add <provider> <category> [secret]",
		Short: "Add a provider key",
		Long: `Add a provider key.

The secret is read from stdin when omitted or given as "-", which keeps it out
of the shell history:

  echo "$OPENAI_API_KEY" | voicedesk keys add openai llm`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := "-"
			if len(args) == 3 {
				secret = args[2]
			}
			if secret == "-" {
				var err error
				if secret, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			if validate {
				s.cfg.Validation.ValidateOnAdd = true
			}

			return s.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.AddKey(cmd.Context(), args[0], args[1], secret)
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), res)
				}

				out := cmd.OutOrStdout()
				status := "inactive"
				if res.Key.IsActive {
					status = "active"
				}
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Added %s key %s (%s, %s)",
					res.Key.Category, res.Key.ID, res.Key.MaskedSecret, status)))
				if res.Validation != nil {
					printValidation(out, *res.Validation)
				}
				fmt.Fprintf(out, "Estimated cost: $%.3f/min\n", res.Summary.EstimatedCostPerMinute)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "check the key against the vendor after adding it")
	return cmd
}

func newKeysRemoveCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a provider key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				removed, err := a.RemoveKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"removed": removed})
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "No key with id %s\n", args[0])
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Removed key "+args[0]))
				return nil
			})
		},
	}
}

func newKeysActivateCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a key the active one of its category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				key, err := a.ActivateKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), key)
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
					fmt.Sprintf("%s is now the active %s key", key.ID, key.Category)))
				return nil
			})
		},
	}
}

func newKeysValidateCommand(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [id]",
		Short: "Check keys against their vendors",
		Long:  "Check one key, or every stored key when no id is given, against its vendor and record the verdict.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					kv, err := a.ValidateKey(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if s.jsonOutput {
						return writeJSON(out, kv)
					}
					printValidation(out, *kv)
					return nil
				}

				results, err := a.ValidateAll(cmd.Context())
				if s.jsonOutput {
					if werr := writeJSON(out, results); werr != nil {
						return werr
					}
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No provider keys stored")
				}
				for _, kv := range results {
					printValidation(out, kv)
				}
				return err
			})
		},
	}
}

// readSecret reads a single line from r
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
