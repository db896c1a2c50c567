package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List verdicts recorded during the lookback window",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().Int("days", 0, "lookback window in days (defaults to default_days)")
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, args []string) error {
	m, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	days := cfg.DefaultDays
	if d, _ := cmd.Flags().GetInt("days"); d > 0 {
		days = d
	}

	verdicts, err := m.RecentVerdicts(cmd.Context(), days)
	if err != nil {
		return err
	}
	if len(verdicts) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no verdicts in the last %d days\n", days)
		return nil
	}
	for _, v := range verdicts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  case %s  plan %s  %s  by %s\n",
			v.Time.Format("2006-01-02 15:04"), v.CaseID, v.PlanID, v.Status, v.Author)
	}
	return nil
}
