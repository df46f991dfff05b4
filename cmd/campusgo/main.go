package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kirinyoku/campusgo/docs"
	"github.com/kirinyoku/campusgo/internal/app"
	"github.com/kirinyoku/campusgo/internal/config"
	"github.com/spf13/pflag"
)

// @title                       CampusGo Registration & Check-In API
// @version                     1.0
// @description                 Event registration, ticketing and door check-in for campus events.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile   string
		migrate   bool
		reminders bool
	)

	flagSet := pflag.NewFlagSet("campusgo", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment from this file instead of ./.env")
	flagSet.BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	flagSet.BoolVar(&reminders, "reminders", true, "run the event reminder sweep on this instance")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.New(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Env, cfg.LogLevel)
	docs.SwaggerInfo.Host = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger, app.Options{
		Migrate:   migrate,
		Reminders: reminders,
	})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application finished with error", "error", err)
		return err
	}

	logger.Info("application stopped")
	return nil
}
