package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover every root, then download every product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := appInstance.Runner().Run(cmd.Context(), appInstance.Config().Catalog.Roots)
			logDownloadTotals(appInstance.Logger(), "Run command finished.", summaries)
			return interrupted(err)
		},
	}
}
