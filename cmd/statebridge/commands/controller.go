package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/statebridge/internal/config"
	"git.home.luguber.info/inful/statebridge/internal/journal"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/metrics"
	"git.home.luguber.info/inful/statebridge/internal/replica"
	"git.home.luguber.info/inful/statebridge/internal/server/handlers"
	"git.home.luguber.info/inful/statebridge/internal/server/httpserver"
	"git.home.luguber.info/inful/statebridge/internal/services"
)

const stopTimeout = 30 * time.Second

// ControllerCmd implements the 'controller' command.
type ControllerCmd struct {
	Listen  string `help:"HTTP listen address (overrides http.listen)"`
	Journal string `help:"Journal database path (overrides journal.path)"`
}

func (c *ControllerCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, config.RoleController)
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.HTTP.Listen = c.Listen
	}
	if c.Journal != "" {
		cfg.Journal.Path = c.Journal
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := startController(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}

	<-ctx.Done()
	g.Logger.Info("Shutdown signal received, stopping controller...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}

// controllerApp is a running controller: journal, transport, runtime and HTTP server,
// started and stopped in dependency order.
type controllerApp struct {
	logger    *slog.Logger
	services  *services.Orchestrator
	transport *transport
	store     *journal.Store
	runtime   *replica.Runtime
	counter   *replica.Class[Counter]
	http      *httpserver.Server
}

func startController(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*controllerApp, error) {
	app := &controllerApp{logger: logger, services: services.NewOrchestrator(logger)}
	opts := []replica.Option{replica.WithConfig(cfg), replica.WithLogger(logger)}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		opts = append(opts, replica.WithRecorder(metrics.NewPrometheusRecorder(reg)))
		metricsHandler = metrics.HTTPHandler(reg)
	}

	var history handlers.JournalView
	runtimeDeps := []string{"transport"}
	if cfg.Journal.Path != "" {
		runtimeDeps = append(runtimeDeps, "journal")
		err := app.services.Register(&services.Func{
			ServiceName: "journal",
			OnStart: func(context.Context) error {
				store, err := journal.Open(cfg.Journal.Path)
				if err != nil {
					return err
				}
				app.store = store
				history = store
				opts = append(opts, replica.WithJournal(store))
				return nil
			},
			OnStop: func(context.Context) error { return app.store.Close() },
		})
		if err != nil {
			return nil, err
		}
	}

	registrations := []*services.Func{
		{
			ServiceName: "transport",
			OnStart: func(ctx context.Context) error {
				tr, err := openTransport(ctx, cfg, logger)
				if err != nil {
					return err
				}
				app.transport = tr
				return nil
			},
			OnStop: func(context.Context) error { return app.transport.close() },
		},
		{
			ServiceName: "runtime",
			Requires:    runtimeDeps,
			OnStart: func(context.Context) error {
				app.runtime = replica.NewRuntime(opts...)
				counter, err := defineCounter(app.runtime, app.transport.ch)
				if err == nil {
					// Activate now so init requests are answered before the first local write.
					_, err = counter.Instance()
				}
				if err != nil {
					_ = app.runtime.Close()
					return err
				}
				app.counter = counter
				return nil
			},
			OnStop: func(context.Context) error { return app.runtime.Close() },
		},
		{
			ServiceName: "http",
			Requires:    []string{"runtime"},
			OnStart: func(context.Context) error {
				app.http = httpserver.New(httpserver.Options{
					Listen:   cfg.HTTP.Listen,
					Role:     string(config.RoleController),
					State:    app.runtime,
					Journal:  history,
					Sync:     app.transport.sync,
					SyncPath: cfg.Transport.Websocket.Path,
					Metrics:  metricsHandler,
					Logger:   logger,
				})
				// The listener outlives the start timeout, so it gets the command context.
				return app.http.Start(ctx)
			},
			OnStop: func(ctx context.Context) error { return app.http.Stop(ctx) },
		},
	}
	for _, svc := range registrations {
		if err := app.services.Register(svc); err != nil {
			return nil, err
		}
	}

	if err := app.services.StartAll(ctx); err != nil {
		return nil, err
	}

	logger.Info("Controller running",
		slog.String("transport", string(cfg.Transport.Kind)),
		slog.String("http", app.http.Addr()),
		logfields.UID(CounterUID))
	return app, nil
}

// Stop shuts the HTTP server down, then releases the runtime, transport and journal.
func (a *controllerApp) Stop(ctx context.Context) error {
	if err := a.services.StopAll(ctx); err != nil {
		return err
	}
	a.logger.Info("Controller stopped")
	return nil
}
