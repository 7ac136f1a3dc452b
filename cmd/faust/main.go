// Command faust maintains the Faust edition store: it loads the archive
// registry, ingests document descriptors, keeps the verse index current and
// answers verse queries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gremid/faust-app/core/document"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/index"
	"github.com/gremid/faust-app/core/sqlite"
	"github.com/gremid/faust-app/core/verseindex"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/archives"
	"github.com/gremid/faust-app/internal/ingest"
	"github.com/gremid/faust-app/internal/logging"
	"github.com/gremid/faust-app/internal/watch"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `short:"c" help:"Configuration file" type:"path"`
	LogLevel  string `name:"log-level" help:"Override the configured log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Override the configured log format (json, text)"`

	Out io.Writer `kong:"-"`
}

// CLI defines the command-line interface for faust.
type CLI struct {
	Globals

	Archives ArchivesGroup `cmd:"" help:"Archive registry operations"`
	Ingest   IngestCmd     `cmd:"" help:"Ingest document descriptors"`
	Remove   RemoveCmd     `cmd:"" help:"Remove the documents parsed from a descriptor"`
	Verse    VerseGroup    `cmd:"" help:"Verse index operations"`
	Watch    WatchCmd      `cmd:"" help:"Reingest descriptors as they change"`
	Info     InfoCmd       `cmd:"" help:"Show store locations and contents"`
	Version  VersionCmd    `cmd:"" help:"Print version information"`
}

// ArchivesGroup contains archive registry operations.
type ArchivesGroup struct {
	Load ArchivesLoadCmd `cmd:"" help:"Load the archive registry into the graph"`
	List ArchivesListCmd `cmd:"" help:"List the known archives"`
}

// VerseGroup contains verse index operations.
type VerseGroup struct {
	Query   VerseQueryCmd   `cmd:"" help:"Find the documents containing a verse"`
	Reindex VerseReindexCmd `cmd:"" help:"Rebuild the verse index from every stored document"`
}

func options() []kong.Option {
	return []kong.Option{
		kong.Name("faust"),
		kong.Description("Faust edition - descriptor ingestion and verse index"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	}
}

func main() {
	var cli CLI
	parser := kong.Must(&cli, options()...)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.Out = os.Stdout
	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// ArchivesLoadCmd loads the archive registry.
type ArchivesLoadCmd struct {
	URI string `arg:"" optional:"" help:"Registry URI (defaults to archives_uri from the configuration)"`
}

func (c *ArchivesLoadCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	uri := c.URI
	if uri == "" {
		uri = a.cfg.ArchivesURI
	}
	n, err := archives.Load(context.Background(), a.graph, a.xml, uri)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "Loaded %d archives from %s\n", n, uri)
	return nil
}

// ArchivesListCmd lists the archives in the graph.
type ArchivesListCmd struct{}

func (c *ArchivesListCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := graph.Execute(context.Background(), a.graph, func(gr *graph.Graph) ([]*document.Archive, error) {
		col, err := document.Archives(gr)
		if err != nil {
			return nil, err
		}
		return col.All()
	}, graph.ReadOnly(), graph.Named("archives"))
	if err != nil {
		return err
	}
	for _, ar := range all {
		fmt.Fprintf(g.Out, "%s\t%s\t%s\n", ar.ID, ar.Name, ar.City)
	}
	return nil
}

// IngestCmd ingests descriptors given as paths or storage URIs. Without
// arguments every descriptor below descriptor_prefix is synchronised.
type IngestCmd struct {
	Sources []string `arg:"" optional:"" help:"Descriptor paths or faust://xml/ URIs"`
	Force   bool     `help:"Reparse descriptors whose content is unchanged"`
}

func (c *IngestCmd) Run(g *Globals) error {
	var opts []ingest.Option
	if c.Force {
		opts = append(opts, ingest.WithForce())
	}
	a, err := openApp(g, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *ingest.Report
	if len(c.Sources) == 0 {
		report, err = a.ingester.Sync(ctx, a.cfg.DescriptorPrefix)
	} else {
		uris := make([]string, 0, len(c.Sources))
		for _, s := range c.Sources {
			uri, err := sourceURI(a.xml, s)
			if err != nil {
				return err
			}
			uris = append(uris, uri)
		}
		report, err = a.ingester.IngestAll(ctx, uris)
	}
	if report != nil {
		printReport(g.Out, report)
	}
	if err != nil {
		return err
	}
	if failed := report.Failures(); len(failed) > 0 {
		return fmt.Errorf("%d descriptors failed", len(failed))
	}
	return nil
}

// RemoveCmd removes the documents of one descriptor.
type RemoveCmd struct {
	Source string `arg:"" help:"Descriptor path or faust://xml/ URI"`
}

func (c *RemoveCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	uri, err := sourceURI(a.xml, c.Source)
	if err != nil {
		return err
	}
	out := a.ingester.Remove(context.Background(), uri)
	if out.Err != nil {
		return out.Err
	}
	fmt.Fprintf(g.Out, "Removed %d documents parsed from %s\n", len(out.Removed), uri)
	return nil
}

// VerseQueryCmd looks up one verse.
type VerseQueryCmd struct {
	Verse int  `arg:"" help:"Verse number"`
	Limit int  `short:"n" default:"100" help:"Maximum number of verse entries"`
	JSON  bool `help:"Print JSON"`
}

type verseHit struct {
	Document int64 `json:"document"`
	Start    int   `json:"start"`
	End      int   `json:"end"`
}

func (c *VerseQueryCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	found, err := a.verses.Query(context.Background(), c.Verse, c.Limit)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	hits := []verseHit{}
	for _, id := range ids {
		for _, r := range found[id] {
			hits = append(hits, verseHit{Document: id, Start: r.Start, End: r.End})
		}
	}

	if c.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		fmt.Fprintf(g.Out, "Verse %d not found\n", c.Verse)
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(g.Out, "%d\t%s\n", h.Document, verseindex.Range{Start: h.Start, End: h.End})
	}
	return nil
}

// VerseReindexCmd rebuilds the verse index.
type VerseReindexCmd struct{}

func (c *VerseReindexCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	ids, err := documentIDs(ctx, a.graph)
	if err != nil {
		return err
	}
	if err := a.verses.DocumentsUpdated(ctx, ids); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "Reindexed %d documents\n", len(ids))
	return nil
}

// WatchCmd synchronises the descriptors and then follows changes until
// interrupted.
type WatchCmd struct {
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (overrides metrics.addr)"`
	NoSync      bool   `name:"no-sync" help:"Skip the initial synchronisation"`
}

func (c *WatchCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := c.MetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metricsServer(addr)
		defer srv.Shutdown(context.Background())
	}

	if !c.NoSync {
		report, err := a.ingester.Sync(ctx, a.cfg.DescriptorPrefix)
		if report != nil {
			printReport(g.Out, report)
		}
		if err != nil {
			return err
		}
	}

	w, err := watch.New(a.xml, a.cfg.DescriptorPrefix, a.ingester, watch.Options{
		Debounce:   a.cfg.Watch.Debounce,
		Extensions: a.cfg.Watch.Extensions,
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", "addr", addr, "error", err.Error())
		}
	}()
	return srv
}

// InfoCmd prints where the stores live and what they hold.
type InfoCmd struct{}

func (c *InfoCmd) Run(g *Globals) error {
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	counts, err := graph.Execute(ctx, a.graph, func(gr *graph.Graph) ([2]int, error) {
		var n [2]int
		col, err := document.Archives(gr)
		if err != nil {
			return n, err
		}
		all, err := col.All()
		if err != nil {
			return n, err
		}
		units, err := document.MaterialUnits(gr)
		if err != nil {
			return n, err
		}
		ids, err := units.DocumentIDs()
		if err != nil {
			return n, err
		}
		n[0], n[1] = len(all), len(ids)
		return n, nil
	}, graph.ReadOnly(), graph.Named("info"))
	if err != nil {
		return err
	}

	var verses int
	err = a.index.View(ctx, func(r *index.Reader) error {
		verses, err = r.Count(verseindex.EntryType)
		return err
	})
	if err != nil {
		return err
	}

	info := sqlite.GetInfo()
	fmt.Fprintf(g.Out, "SQLite driver:  %s (%s, cgo=%t)\n", info.DriverName, info.Package, info.IsCGO)
	fmt.Fprintf(g.Out, "Graph store:    %s\n", a.cfg.GraphPath())
	fmt.Fprintf(g.Out, "Index store:    %s\n", a.cfg.IndexPath())
	fmt.Fprintf(g.Out, "XML root:       %s\n", a.xml.Root())
	fmt.Fprintf(g.Out, "Archives:       %d\n", counts[0])
	fmt.Fprintf(g.Out, "Documents:      %d\n", counts[1])
	fmt.Fprintf(g.Out, "Verse entries:  %d\n", verses)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.Out, "faust version %s\n", version)
	return nil
}

// Helper functions

// sourceURI accepts a storage URI or a filesystem path.
func sourceURI(xs *xmlstore.Store, s string) (string, error) {
	if xmlstore.IsStorageURI(s) {
		return s, nil
	}
	return xs.URI(s)
}

func documentIDs(ctx context.Context, gs *graph.Store) ([]int64, error) {
	return graph.Execute(ctx, gs, func(gr *graph.Graph) ([]int64, error) {
		units, err := document.MaterialUnits(gr)
		if err != nil {
			return nil, err
		}
		nodes, err := units.DocumentIDs()
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(nodes))
		for i, id := range nodes {
			ids[i] = int64(id)
		}
		return ids, nil
	}, graph.ReadOnly(), graph.Named("documents"))
}

func printReport(w io.Writer, r *ingest.Report) {
	summary := r.Summary()
	results := make([]string, 0, len(summary))
	for res := range summary {
		results = append(results, string(res))
	}
	sort.Strings(results)
	for _, res := range results {
		fmt.Fprintf(w, "%s: %d\n", res, summary[ingest.Result(res)])
	}
	for _, o := range r.Failures() {
		fmt.Fprintf(w, "  %s: %v\n", o.URI, o.Err)
	}
}
