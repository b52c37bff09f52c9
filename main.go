package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"payment-service/internal/api"
	"payment-service/internal/catalog"
	"payment-service/internal/config"
	"payment-service/internal/entitlement"
	"payment-service/internal/event"
	"payment-service/internal/gateway"
	"payment-service/internal/kafka"
	"payment-service/internal/logging"
	"payment-service/internal/metrics"
	"payment-service/internal/poller"
	"payment-service/internal/webhook"
)

func main() {
	godotenv.Load()

	cfg := config.MustLoadConfig("./config")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	packages := catalog.Default()

	registry := gateway.NewRegistry()
	registry.Register("xunhupay", gateway.NewXunhupay(cfg.Gateway, packages, logger))

	provider, err := registry.Get(cfg.Gateway.Provider)
	if err != nil {
		log.Fatal(err)
	}

	eventWriter := kafka.NewWriter(cfg.Kafka)
	defer eventWriter.Close()

	publisher := event.NewKafkaPublisher(eventWriter, logger)

	issuer := entitlement.NewIssuer(cfg.Entitlement.Secret, packages)

	statusPoller := poller.New(provider, poller.Policy{
		MaxAttempts: cfg.Poller.MaxAttempts,
		Interval:    cfg.Poller.Interval(),
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /api/payment/notify", webhook.NewHandler(cfg.Gateway.AppSecret, publisher, logger))

	api.NewHandler(provider, statusPoller, issuer, cfg.Entitlement.CookieMaxAgeDays, logger).Register(mux)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
