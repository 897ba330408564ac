package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/domcore/internal/config"
	"github.com/vango-dev/domcore/internal/errors"
	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/metrics"
	"github.com/vango-dev/domcore/pkg/server"
	"github.com/vango-dev/domcore/pkg/snapshot"
)

// app wires the runtime components described by a Config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	directory *dom.Directory
}

func newApp(cfg *config.Config, logOutput io.Writer) *app {
	logger := cfg.Log.NewLogger(logOutput)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   mtr,
		directory: dom.NewDirectory(mtr),
	}
}

// newManager creates, sizes, starts and registers a manager for the
// configured root.
func (a *app) newManager() (*dom.Manager, error) {
	m := dom.NewManager(a.cfg.Root.ID,
		dom.WithLogger(a.logger),
		dom.WithMetrics(a.metrics),
		dom.WithDirectory(a.directory),
	)
	if err := m.SetRootSize(a.cfg.Root.Width, a.cfg.Root.Height); err != nil {
		m.Close()
		return nil, errors.New("D040").Wrap(err)
	}
	if err := m.StartTaskRunner(); err != nil {
		m.Close()
		return nil, errors.New("D040").Wrap(err)
	}
	return m, nil
}

// closeAll closes every registered manager.
func (a *app) closeAll() {
	for _, id := range a.directory.IDs() {
		if m, ok := a.directory.Find(id); ok {
			m.Close()
		}
	}
}

// store opens the configured snapshot store, or returns nil when none is
// configured.
func (a *app) store() (snapshot.Store, error) {
	sc := a.cfg.Snapshot
	switch {
	case sc.Bucket != "":
		client := snapshot.NewS3Client(snapshot.S3Config{Region: sc.Region, Endpoint: sc.Endpoint})
		return snapshot.NewS3Store(client, sc.Bucket, sc.Prefix), nil
	case sc.Dir != "":
		store, err := snapshot.NewDiskStore(sc.Dir)
		if err != nil {
			return nil, errors.New("D061").Wrap(err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// export captures m and writes it to the configured store.
func (a *app) export(ctx context.Context, m *dom.Manager) (string, error) {
	store, err := a.store()
	if err != nil {
		return "", err
	}
	if store == nil {
		return "", errors.New("D061")
	}
	key, err := snapshot.NewExporter(store, a.logger).Export(ctx, m)
	if err != nil {
		return "", errors.New("D060").Wrap(err)
	}
	return key, nil
}

func (a *app) serverConfig() *server.Config {
	sc := a.cfg.Server
	return &server.Config{
		Address:           sc.Addr,
		AllowedOrigins:    sc.AllowedOrigins,
		ReadHeaderTimeout: sc.ReadHeaderTimeout.Std(),
		WriteTimeout:      sc.WriteTimeout.Std(),
		BridgeReadTimeout: sc.BridgeReadTimeout.Std(),
		ShutdownTimeout:   sc.ShutdownTimeout.Std(),
		MaxBodyBytes:      sc.MaxBodyBytes,
	}
}
