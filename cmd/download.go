package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/runner"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the archive of every product in the link files",
		Long: `Reads each root's link file and materializes the STEP archive of every product
under the output directory. Products that fail are logged and skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := appInstance.Runner().DownloadAll(cmd.Context(), appInstance.Config().Catalog.Roots)
			logDownloadTotals(appInstance.Logger(), "Download command finished.", summaries)
			return interrupted(err)
		},
	}
}

func logDownloadTotals(logger *zap.Logger, msg string, summaries []runner.DownloadSummary) {
	var downloaded, skipped, failed int
	for _, s := range summaries {
		downloaded += s.Downloaded
		skipped += s.Skipped
		failed += s.Failed
	}
	logger.Info(msg,
		zap.Int("roots", len(summaries)),
		zap.Int("downloaded", downloaded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
}
