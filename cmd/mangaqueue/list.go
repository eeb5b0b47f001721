package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/data"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mangas in your library",
	Long:  "Show every stored manga with its download status and chapter counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := data.OpenRepository(cfg.Library.Driver, cfg.Library.Path)
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx := cmd.Context()
		mangas, err := repo.ListMangas(ctx)
		if err != nil {
			return err
		}
		if len(mangas) == 0 {
			fmt.Println("📚 Library is empty. Find something with 'mangaqueue search'.")
			return nil
		}

		rows := make([]table.Row, 0, len(mangas))
		for _, m := range mangas {
			_, total, downloaded, err := repo.GetMangaWithChapterCount(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("failed to count chapters of %s: %w", m.Name, err)
			}
			rows = append(rows, table.Row{
				m.ID,
				truncateString(m.Name, 38),
				m.Source,
				statusOrDefault(m.Status),
				strconv.Itoa(downloaded) + "/" + strconv.Itoa(total),
			})
		}

		t := table.New(
			table.WithColumns([]table.Column{
				{Title: "ID", Width: 36},
				{Title: "Name", Width: 40},
				{Title: "Source", Width: 10},
				{Title: "Status", Width: 12},
				{Title: "Chapters", Width: 10},
			}),
			table.WithRows(rows),
			table.WithHeight(len(rows)),
			table.WithFocused(false),
		)

		st := table.DefaultStyles()
		st.Header = st.Header.
			Foreground(styles.Primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(styles.Muted).
			BorderBottom(true).
			Bold(true)
		// Unfocused tables still paint the first row as selected.
		st.Selected = st.Cell
		t.SetStyles(st)

		fmt.Println(styles.TitleStyle.Render(fmt.Sprintf("📚 Library (%d)", len(mangas))))
		fmt.Println(t.View())
		return nil
	},
}

func statusOrDefault(status string) string {
	if status == "" {
		return "ready"
	}
	return status
}
