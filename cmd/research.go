package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/reachloop/research-core/internal/research"
)

var researchWeekly bool

var researchCmd = &cobra.Command{
	Use:   "research <business-id>",
	Short: "Run content research for a business",
	Long:  "Runs an initial full-history research pass by default, or the weekly incremental pass with --weekly. Scoring continues in the background until the command exits.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		var out *research.RunOutcome
		if researchWeekly {
			out, err = env.Service.RunIncremental(ctx, args[0])
		} else {
			out, err = env.Service.RunInitial(ctx, args[0])
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	researchCmd.Flags().BoolVar(&researchWeekly, "weekly", false, "run the weekly incremental pass instead of the initial one")
	rootCmd.AddCommand(researchCmd)
}
