package main

import (
	"errors"
	"strings"

	"github.com/gremid/faust-app/core/events"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/index"
	"github.com/gremid/faust-app/core/sqlite"
	"github.com/gremid/faust-app/core/transcript"
	"github.com/gremid/faust-app/core/verseindex"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/config"
	"github.com/gremid/faust-app/internal/ingest"
	"github.com/gremid/faust-app/internal/logging"
)

// app holds the stores and services one command works with.
type app struct {
	cfg      *config.Config
	graph    *graph.Store
	index    *index.Store
	xml      *xmlstore.Store
	bus      *events.Bus
	verses   *verseindex.Index
	ingester *ingest.Ingester
}

// loadConfig resolves the configuration and sets up logging from it.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := (&config.Loader{}).Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	logging.InitLogger(logging.ParseLevel(cfg.Log.Level), logging.ParseFormat(cfg.Log.Format))
	return cfg, nil
}

// openApp opens both databases and XML storage and subscribes the verse
// index to the event bus.
func openApp(g *Globals, ingestOpts ...ingest.Option) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if a.xml, err = xmlstore.New(cfg.XMLRoot); err != nil {
		return nil, err
	}
	dbOpts := []sqlite.Option{
		sqlite.WithBusyTimeout(int(cfg.SQLite.BusyTimeout.Milliseconds())),
		sqlite.WithSynchronous(strings.ToUpper(cfg.SQLite.Synchronous)),
	}
	if a.graph, err = graph.Open(cfg.GraphPath(), dbOpts...); err != nil {
		return nil, err
	}
	if a.index, err = index.Open(cfg.IndexPath(), dbOpts...); err != nil {
		a.graph.Close()
		return nil, err
	}

	a.bus = events.New(events.Options{Workers: cfg.Workers, Buffer: cfg.EventBuffer})
	a.verses = verseindex.New(a.index, transcript.NewSource(a.graph, a.xml),
		verseindex.WithCacheTTL(cfg.QueryCacheTTL))
	a.verses.Subscribe(a.bus)

	opts := append([]ingest.Option{ingest.WithWorkers(cfg.Workers)}, ingestOpts...)
	a.ingester = ingest.New(a.graph, a.xml, a.bus, opts...)

	logging.Debug("stores opened",
		"graph", cfg.GraphPath(),
		"index", cfg.IndexPath(),
		"xml_root", a.xml.Root(),
		"sqlite_driver", sqlite.DriverType(),
	)
	return a, nil
}

// Close drains the event bus before closing the stores, so every published
// change reaches the verse index.
func (a *app) Close() error {
	a.bus.Close()
	a.verses.Close()
	return errors.Join(a.index.Close(), a.graph.Close())
}
