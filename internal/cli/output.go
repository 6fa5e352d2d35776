package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"voicedesk/internal/settings"
	"voicedesk/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func validityLabel(valid bool) string {
	if valid {
		return okStyle.Render("valid")
	}
	return badStyle.Render("invalid")
}

func activeLabel(active bool) string {
	if active {
		return "*"
	}
	return ""
}

func modeLabel(mode models.BillingMode) string {
	if mode == models.BillingModeBYOK {
		return okStyle.Render(string(mode))
	}
	return string(mode)
}

func printKeys(w io.Writer, keys []models.MaskedProviderKey) {
	if len(keys) == 0 {
		fmt.Fprintln(w, "No provider keys stored")
		return
	}

	t := newTable("ID", "CATEGORY", "PROVIDER", "KEY", "STATUS", "ACTIVE")
	for _, k := range keys {
		t.Row(k.ID.String(), string(k.Category), k.Provider, k.MaskedSecret, validityLabel(k.IsValid), activeLabel(k.IsActive))
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintln(w, mutedStyle.Render("* marks the active key of each category"))
}

func printSummary(w io.Writer, s models.BillingSummary) {
	t := newTable("CATEGORY", "MODE", "USD/MIN")
	for _, line := range s.Breakdown {
		t.Row(line.Category.DisplayName(), modeLabel(line.Mode), fmt.Sprintf("%.3f", line.CostPerMinute))
	}
	t.Row("Platform fee", "", fmt.Sprintf("%.3f", s.PlatformFee))
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "Estimated cost: $%.3f/min (%d keys, %d of %d categories on your own keys)\n",
		s.EstimatedCostPerMinute, s.TotalKeyCount, s.ByokCategoryCount, len(models.AllCategories))
}

func printValidation(w io.Writer, kv settings.KeyValidation) {
	if kv.Result == nil {
		fmt.Fprintf(w, "%s  skipped (key removed)\n", kv.KeyID)
		return
	}

	label := validityLabel(kv.IsValid)
	if !kv.Result.Outcome.Definitive() {
		label = mutedStyle.Render(string(kv.Result.Outcome))
	}
	msg := kv.Result.Message
	if kv.Result.Cached {
		msg += " (cached)"
	}
	fmt.Fprintf(w, "%s  %-10s %s  %s\n", kv.KeyID, kv.Result.Provider, label, msg)
}
