package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"
	tele "gopkg.in/telebot.v4"

	coreconfig "promobot/core/config"
	coredatabase "promobot/core/database"
	"promobot/core/logger"
	tg "promobot/core/telegram"
	"promobot/core/telegram/router"
	"promobot/internal/engine"
	"promobot/internal/notify"
	"promobot/internal/scheduler"
	"promobot/internal/session"
	"promobot/internal/storage"
	"promobot/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bot:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		return err
	}

	users := storage.NewUsersRepo(db)
	promos := storage.NewPromotionsRepo(db)
	catalog := storage.NewCatalogRepo(db)
	sessions := session.NewStore(storage.NewSessionsRepo(db))

	tx := transport.New(nil)
	dispatcher := notify.NewDispatcher(promos, users, tx)
	sched := scheduler.New(promos, dispatcher)

	eng := engine.New(users, catalog, promos, sessions, sched, tx)
	reg := tg.NewRegistry()
	eng.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return c.Send("This command is not available.")
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	mws := tg.DefaultMiddlewares(cfg, func(c tele.Context) error {
		return c.Send("Too many requests, give me a second.")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tg.RunTelegram(ctx, tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: mws,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			tx.Bind(rt.Bot)
			sched.Start()
			logger.Info(ctx, "app", "bot.started")
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			sched.Stop()
			logger.Info(ctx, "app", "bot.stopped", slog.String("status", "ok"))
			return nil
		},
	})
}
