package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a source for manga",
	Long:  "Query a source catalog and print the matches with the IDs to download them by",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("source")

		registry := sources.DefaultRegistry(sources.Options{
			BaseURL:           cfg.Sources.MangaDex.BaseURL,
			DownloadDir:       cfg.Downloads.Dir,
			RequestsPerSecond: cfg.Sources.MangaDex.RequestsPerSecond,
			Language:          cfg.Sources.MangaDex.Language,
		})
		catalog, err := registry.Catalog(name)
		if err != nil {
			return err
		}

		results, err := catalog.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(results) == 0 {
			fmt.Println(styles.MutedStyle.Render("No results found."))
			return nil
		}

		header := lipgloss.NewStyle().Foreground(styles.Secondary).Bold(true)
		cell := lipgloss.NewStyle().Padding(0, 1)
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(styles.Muted)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return header.Padding(0, 1)
				}
				return cell
			}).
			Headers("#", "Name", "ID")
		for i, m := range results {
			t.Row(strconv.Itoa(i+1), truncateString(m.Name, 58), m.RemoteID)
		}

		fmt.Println(t)
		fmt.Println(styles.HelpStyle.Render("mangaqueue download --source " + name + " <ID>"))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringP("source", "s", sources.MangaDexName, "Source to search")
}
