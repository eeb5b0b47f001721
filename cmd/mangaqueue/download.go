package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/services"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

var downloadCmd = &cobra.Command{
	Use:   "download [manga-id...]",
	Short: "Download manga chapters",
	Long:  "Queue one or more mangas and download them in order. Ctrl-C cancels the queue.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		language, _ := cmd.Flags().GetString("language")
		chapters, _ := cmd.Flags().GetString("chapters")
		chapterRange, _ := cmd.Flags().GetString("range")

		logger := newLogger()
		defer logger.Sync()

		var (
			mu   sync.Mutex
			last string
		)
		sink := services.StatusFunc(func(st services.Status) {
			mu.Lock()
			defer mu.Unlock()
			line := formatStatus(st)
			if line != last {
				fmt.Println(line)
				last = line
			}
		})

		ctrl, err := services.NewMangaController(context.Background(), cfg, services.ControllerOptions{
			Sink:   sink,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer ctrl.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		stopCancel := context.AfterFunc(ctx, ctrl.Cancel)
		defer stopCancel()

		opts := services.SubmitOptions{Language: language, Range: chapterRange}
		if chapters != "" {
			opts.Chapters = strings.Split(chapters, ",")
		}
		for _, id := range args {
			job, err := ctrl.Submit(ctx, source, id, opts)
			if err != nil {
				stopQueue(ctrl, logger, shutdownTimeout)
				return fmt.Errorf("failed to queue %s: %w", id, err)
			}
			fmt.Printf("📥 Queued %s (%d chapters)\n", job.Name, len(job.Chapters))
		}

		if err := ctrl.Wait(context.Background()); err != nil {
			return err
		}
		if ctx.Err() != nil {
			fmt.Println("⚠️  Downloads cancelled")
			return nil
		}
		fmt.Println("✅ Downloads complete")
		return nil
	},
}

// queueStopper is the part of the controller stopQueue drives.
type queueStopper interface {
	Cancel()
	Wait(ctx context.Context) error
}

// stopQueue cancels q and waits up to timeout for its runner to stop.
func stopQueue(q queueStopper, logger *zap.Logger, timeout time.Duration) {
	q.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		logger.Warn("downloads still running at exit", zap.Error(err))
	}
}

// formatStatus renders a status update as a single line.
func formatStatus(st services.Status) string {
	switch {
	case st.Done:
		return "All downloads finished"
	case st.Cancelling:
		return fmt.Sprintf("Cancelling %s...", st.Title)
	case st.Indeterminate || st.Max <= 0:
		return fmt.Sprintf("  %s: %s", st.Title, st.Text)
	default:
		return fmt.Sprintf("  %s: %s %d%%", st.Title, st.Text, st.Progress*100/st.Max)
	}
}

func init() {
	downloadCmd.Flags().StringP("source", "s", sources.MangaDexName, "Source to download from")
	downloadCmd.Flags().StringP("language", "l", "", "Language code (e.g., en, ja, es); defaults to the configured one")
	downloadCmd.Flags().StringP("chapters", "c", "", "Comma separated chapter numbers (e.g., 1,2,10.5)")
	downloadCmd.Flags().StringP("range", "r", "", "Chapter range (e.g., 1-10)")
}
