package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/research"
)

var leadsTargetIndex int

var leadsCmd = &cobra.Command{
	Use:   "leads <business-id>",
	Short: "Process lead research targets for a business",
	Long:  "Processes every unfulfilled research target of the business through the cache-or-scrape pipeline, or a single target with --target.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx, "leads")
		if err != nil {
			return err
		}
		defer env.Close()

		businessID := args[0]
		var outcomes []*research.TargetOutcome

		if leadsTargetIndex >= 0 {
			out, err := env.Service.ProcessTarget(ctx, businessID, leadsTargetIndex)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, out)
		} else {
			biz, err := env.Store.GetBusiness(ctx, businessID)
			if err != nil {
				return err
			}
			for i, target := range biz.Targets {
				if target.Fulfilled() {
					continue
				}
				out, err := env.Service.ProcessTarget(ctx, businessID, i)
				if err != nil {
					// One stuck target must not block the rest.
					zap.L().Warn("target processing failed",
						zap.Int("target", i), zap.Error(err))
					outcomes = append(outcomes, out)
					continue
				}
				outcomes = append(outcomes, out)
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func init() {
	leadsCmd.Flags().IntVar(&leadsTargetIndex, "target", -1, "process only the target at this index")
	rootCmd.AddCommand(leadsCmd)
}
