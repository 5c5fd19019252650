package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rotisserie/eris"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired lead cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		deleted, err := st.DeleteExpiredLeadCaches(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cache sweep complete", zap.Int("deleted", deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
