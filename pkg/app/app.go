package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/app/screens"
	"github.com/kerbaras/mangaqueue/pkg/config"
	"github.com/kerbaras/mangaqueue/pkg/logging"
	"github.com/kerbaras/mangaqueue/pkg/services"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

// shutdownTimeout bounds how long quitting waits for the running job to stop.
const shutdownTimeout = 30 * time.Second

type App struct {
	cfg    config.Config
	logger *zap.Logger
}

func NewApp(cfg config.Config, logger *zap.Logger) *App {
	return &App{cfg: cfg, logger: logging.OrNop(logger)}
}

// Run starts the terminal UI and blocks until the user quits. Downloads still
// running at that point are cancelled.
func (a *App) Run(ctx context.Context) error {
	b := &bridge{}
	ctrl, err := services.NewMangaController(ctx, a.cfg, services.ControllerOptions{
		Sink:   b,
		Host:   b,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	model := screens.NewRootScreen(ctrl, sources.MangaDexName)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	b.attach(p)
	ctrl.Subscribe(b)

	_, err = p.Run()

	b.detach()
	ctrl.Unsubscribe(b)
	ctrl.Cancel()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if werr := ctrl.Wait(waitCtx); werr != nil {
		a.logger.Warn("downloads still running at exit", zap.Error(werr))
	}
	return err
}
