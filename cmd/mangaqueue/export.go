package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerbaras/mangaqueue/pkg/services"
)

var exportCmd = &cobra.Command{
	Use:   "export [manga-id]",
	Short: "Build an EPUB from a downloaded manga",
	Long:  "Compile the downloaded chapters of a library manga into an EPUB file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Export.Dir = dir
		}

		logger := newLogger()
		defer logger.Sync()

		ctrl, err := services.NewMangaController(context.Background(), cfg, services.ControllerOptions{Logger: logger})
		if err != nil {
			return err
		}
		defer ctrl.Close()

		fmt.Println("📚 Creating EPUB...")
		path, err := ctrl.Export(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("EPUB generation failed: %w", err)
		}
		fmt.Printf("📖 EPUB created: %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output directory; defaults to export.dir")
}
