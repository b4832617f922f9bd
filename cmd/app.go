package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"flowboard/internal/api"
	"flowboard/internal/cache"
	"flowboard/internal/dashboard"
	"flowboard/internal/export"
	logpkg "flowboard/internal/log"
	"flowboard/internal/tenant"
	"flowboard/internal/timerange"
)

// app bundles the components every command works with.
type app struct {
	store     *tenant.FileStore
	session   *tenant.Session
	client    *api.Client
	service   *dashboard.Service
	publisher *export.KafkaPublisher
}

type appOptions struct {
	export bool
}

// loadLocation resolves the timezone setting.
func loadLocation() (*time.Location, error) {
	name := viper.GetString("timezone")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// exportConfig reads the export.* settings.
func exportConfig() export.Config {
	return export.Config{
		Brokers:           export.ParseBrokers(viper.GetString("export.kafka.brokers")),
		Topic:             viper.GetString("export.kafka.topic"),
		SchemaRegistryURL: viper.GetString("export.schema_registry_url"),
	}
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	logger := logpkg.Global()

	loc, err := loadLocation()
	if err != nil {
		return nil, err
	}

	store := tenant.NewFileStore(viper.GetString("preferences_file"))
	session, err := tenant.NewSession(ctx, store, cache.New(), logger,
		tenant.WithDefaultKeys(viper.GetString("api_key"), viper.GetString("subscription_key")))
	if err != nil {
		return nil, err
	}

	client := api.NewClient(viper.GetString("api_url"), api.WithLogger(logger))

	a := &app{store: store, session: session, client: client}

	var publisher dashboard.Publisher
	if cfg := exportConfig(); opts.export && cfg.Enabled() {
		p, err := export.NewKafkaPublisher(cfg, logger)
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		a.publisher = p
		publisher = p
		logger.Info("snapshot export enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}

	a.service = dashboard.NewService(client, session, dashboard.Options{
		Concurrency: viper.GetInt("fetch.concurrency"),
		Location:    loc,
		Logger:      logger,
		Publisher:   publisher,
	})
	return a, nil
}

// resolveRange parses a --range value, falling back to the saved selection.
func (a *app) resolveRange(value string) (timerange.Range, error) {
	if value == "" {
		return a.session.DateRange(), nil
	}
	r, ok := timerange.Parse(value)
	if !ok {
		return "", fmt.Errorf("unknown range %q", value)
	}
	return r, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logpkg.Global().Warn("failed to close exporter", "error", err)
		}
	}
	a.session.Close()
}
