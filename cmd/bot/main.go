package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/bot/handlers"
	"github.com/IlyaMakar/cashbook_bot/internal/config"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/scheduler"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %s", err.Error())
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogToFile); err != nil {
		log.Fatalf("failed to initialize logger: %s", err.Error())
	}
	defer logger.Close()

	// Dates typed by users and "today" are both read in the configured zone.
	time.Local = cfg.Location

	db, err := repository.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open database", "path", cfg.DBPath, "error", err)
	}
	if err := repository.InitDB(db); err != nil {
		logger.Fatal("Failed to init database", "error", err)
	}
	repo := repository.NewRepository(db)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := repository.NewStore(openTable(ctx, cfg), cfg.HeaderRows)
	cache := repository.NewCache(store)
	loadCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	if err := cache.Reload(loadCtx); err != nil {
		logger.Warn("Initial sheet load failed", "error", err)
	}
	cancel()

	wiz := wizard.NewManager(cache, wizard.Options{
		UndoWindow: cfg.UndoWindow,
		SessionTTL: cfg.SessionTTL,
		Location:   cfg.Location,
	})
	svc := service.NewService(cache, cfg.SalaryRate, service.WithLocation(cfg.Location))

	botInstance, err := handlers.NewBot(cfg.TelegramToken, handlers.Deps{
		Repo:         repo,
		Cache:        cache,
		Wizard:       wiz,
		Service:      svc,
		Reports:      handlers.NewReportGenerator(cfg.FontPath),
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to create bot", "error", err)
	}

	sched := scheduler.New(cfg.Location)
	if err := sched.AddJob(scheduler.Every(cfg.SyncInterval), handlers.NewSyncJob(ctx, cache, wiz, cfg.StoreTimeout)); err != nil {
		logger.Fatal("Failed to schedule sync", "error", err)
	}
	reminderSpec, err := scheduler.DailyAt(cfg.ReminderTime)
	if err != nil {
		logger.Fatal("Invalid reminder time", "value", cfg.ReminderTime, "error", err)
	}
	if err := sched.AddJob(reminderSpec, botInstance.ReminderJob()); err != nil {
		logger.Fatal("Failed to schedule reminders", "error", err)
	}
	sched.Start()

	var statsServer *http.Server
	if cfg.StatsAddr != "" {
		statsServer = &http.Server{
			Addr:              cfg.StatsAddr,
			Handler:           handlers.NewStatsAPI(repo, svc).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Stats API listening", "addr", cfg.StatsAddr)
			if err := statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Stats API stopped", "error", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		botInstance.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	sched.Stop()
	if statsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Stats API shutdown failed", "error", err)
		}
		cancel()
	}
	<-done
}

// openTable picks the sheet backend. A nil table runs the bot degraded:
// reads are empty and writes fail with a clear message.
func openTable(ctx context.Context, cfg *config.Config) repository.Table {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("Using in-memory store, records are lost on restart")
		rows := make([][]string, cfg.HeaderRows)
		for i := range rows {
			rows[i] = []string{}
		}
		return repository.NewMemoryTable(rows...)
	}

	if !cfg.SheetsConfigured() {
		logger.Error("Google Sheets is not configured, running without a store")
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	table, err := repository.NewSheetsTable(initCtx, repository.SheetsCredentials{
		JSON: cfg.CredentialsJSON,
		File: cfg.CredentialsFile,
	}, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		logger.Error("Google Sheets unavailable, running without a store", "error", err)
		return nil
	}
	logger.Info("Google Sheets connected", "spreadsheet", cfg.SpreadsheetID, "sheet", cfg.SheetName)
	return table
}
