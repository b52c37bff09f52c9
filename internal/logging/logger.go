package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
)

func GetLogger(cfg config.Logs) *slog.Logger {
	if cfg.URL == "" {
		return localLogger()
	}

	return remoteLogger(cfg.URL)
}

func localLogger() *slog.Logger {
	return slog.New(logcontext.ContextHandler{Handler: slog.NewJSONHandler(os.Stdout, nil)})
}

func remoteLogger(url string) *slog.Logger {
	lokiConfig, _ := loki.NewDefaultConfig(url)
	client, _ := loki.New(lokiConfig)

	return slog.New(slogloki.Option{
		Level:  slog.LevelInfo,
		Client: client,
		AttrFromContext: []func(ctx context.Context) []slog.Attr{
			logcontext.FromCtx,
		},
	}.NewLokiHandler()).With("service", "payment-service")
}
