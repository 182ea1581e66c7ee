package main

import (
	"context"
	"log/slog"

	"github.com/kirillkom/invoice-extraction/internal/bootstrap"
	"github.com/kirillkom/invoice-extraction/internal/config"
	"github.com/kirillkom/invoice-extraction/internal/observability/logging"
)

// commandContext builds the application lazily so commands that only parse
// local files never touch postgres or nats.
type commandContext struct {
	logLevel *string
}

func newCommandContext(logLevel *string) *commandContext {
	return &commandContext{logLevel: logLevel}
}

func (c *commandContext) logger() *slog.Logger {
	level := "warn"
	if c.logLevel != nil && *c.logLevel != "" {
		level = *c.logLevel
	}
	return logging.Install("extractctl", level)
}

func (c *commandContext) withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, config.Load(), nil, c.logger())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
