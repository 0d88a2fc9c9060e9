package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/config"
	"github.com/AlexanderKara/orgportal-sub002/internal/delivery"
	"github.com/AlexanderKara/orgportal-sub002/internal/httpapi"
	"github.com/AlexanderKara/orgportal-sub002/internal/render"
	"github.com/AlexanderKara/orgportal-sub002/internal/scheduler"
	"github.com/AlexanderKara/orgportal-sub002/internal/store"
	"github.com/AlexanderKara/orgportal-sub002/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	loc     *time.Location
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
	svc     *scheduler.Service
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	return &App{cfg: cfg, log: log, loc: loc, bot: bot}, nil
}

// wire builds everything that depends on the open store.
func (a *App) wire(repo store.Repo) {
	a.repo = repo
	a.router = telegram.NewRouter(a.bot, a.log, repo, a.cfg.DefaultTZ)

	channel := &delivery.Mux{
		Telegram: delivery.NewBreaker("telegram", delivery.NewTelegram(a.router),
			a.cfg.BreakerFailures, a.cfg.BreakerTimeout, a.log),
		URL: delivery.NewBreaker("shoutrrr", delivery.NewShoutrrr(),
			a.cfg.BreakerFailures, a.cfg.BreakerTimeout, a.log),
	}
	renderer := render.New(repo, a.log)

	a.sched = scheduler.New(repo, repo, renderer, channel, a.log, scheduler.Options{
		Location: a.loc,
		Workers:  a.cfg.Workers,
	})
	a.svc = scheduler.NewService(a.sched, a.log)

	api := httpapi.NewHandler(a.svc, a.sched, a.log, a.cfg.PollInterval)
	a.httpSrv = &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       5 * time.Second,
		// process-now answers after a whole tick
		WriteTimeout: 2 * time.Minute,
	}
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting notifier",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.loc.String()),
		zap.Duration("poll", a.cfg.PollInterval),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.log.Info("sqlite ready")
	a.wire(repo)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	if a.cfg.AutoStart {
		if _, err := a.svc.Start(a.cfg.PollInterval); err != nil {
			a.log.Error("scheduler start failed", zap.Error(err))
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown stops the poll loop first so no tick runs against a closed store.
func (a *App) shutdown() {
	a.svc.Stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	a.bot.StopReceivingUpdates()
	if err := a.repo.Close(); err != nil {
		a.log.Warn("store close error", zap.Error(err))
	}
}
