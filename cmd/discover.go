package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Walk every root and write its link file",
		Long: `Walks each catalog root depth first, collects every leaf product page, and
overwrites <root>Links.json with the result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := appInstance.Runner().DiscoverAll(cmd.Context(), appInstance.Config().Catalog.Roots)
			total := 0
			for _, s := range summaries {
				total += s.Links
			}
			appInstance.Logger().Info("Discover command finished.",
				zap.Int("roots", len(summaries)),
				zap.Int("links", total),
			)
			return interrupted(err)
		},
	}
}

// interrupted swallows cancellation so a Ctrl-C exits cleanly.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
