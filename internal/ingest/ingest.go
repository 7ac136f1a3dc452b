// Package ingest keeps the graph store in step with the descriptors in XML
// storage and announces every change on the event bus.
//
// Each descriptor is handled in its own graph transaction: the documents
// previously parsed from the same source are deleted and the descriptor is
// parsed afresh. Events are published only after that transaction commits,
// so subscribers never see ids of rolled back work.
package ingest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gremid/faust-app/core/descriptor"
	"github.com/gremid/faust-app/core/document"
	"github.com/gremid/faust-app/core/events"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/logging"
)

// Result classifies what happened to one descriptor.
type Result string

// Results.
const (
	Ingested  Result = "ingested"
	Unchanged Result = "unchanged"
	Skipped   Result = "skipped" // parsed, but no document produced
	Removed   Result = "removed"
	Failed    Result = "failed"
)

// Outcome reports on one descriptor.
type Outcome struct {
	URI        string
	Result     Result
	DocumentID int64
	Units      int
	Removed    []int64
	Err        error
}

// Report collects the outcomes of a batch in input order.
type Report struct {
	Outcomes []Outcome
}

// Count returns the number of outcomes with result r.
func (r *Report) Count(res Result) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == res {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed descriptor, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Ingester parses descriptors into the graph store.
type Ingester struct {
	graph   *graph.Store
	xml     *xmlstore.Store
	bus     *events.Bus
	workers int
	force   bool
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithWorkers bounds the number of descriptors parsed concurrently.
func WithWorkers(n int) Option {
	return func(in *Ingester) { in.workers = n }
}

// WithForce reparses descriptors even when their content hash is unchanged.
func WithForce() Option {
	return func(in *Ingester) { in.force = true }
}

// New returns an Ingester. bus may be nil, in which case nothing is
// published.
func New(gs *graph.Store, xs *xmlstore.Store, bus *events.Bus, opts ...Option) *Ingester {
	in := &Ingester{graph: gs, xml: xs, bus: bus, workers: 1}
	for _, o := range opts {
		o(in)
	}
	if in.workers < 1 {
		in.workers = 1
	}
	return in
}

type change struct {
	removed   []int64
	doc       *document.Document
	unchanged bool
}

// Ingest parses the descriptor at uri, replacing any documents previously
// parsed from it. A descriptor whose content hash matches the stored
// document is left alone.
func (in *Ingester) Ingest(ctx context.Context, uri string) Outcome {
	out := Outcome{URI: uri}
	start := time.Now()

	hash, err := in.xml.Hash(uri)
	if err != nil {
		return in.finish(ctx, out, err)
	}

	ch, err := graph.Execute(ctx, in.graph, func(g *graph.Graph) (change, error) {
		var ch change
		units, err := document.MaterialUnits(g)
		if err != nil {
			return ch, err
		}
		existing, err := units.FindBySource(uri)
		if err != nil {
			return ch, err
		}
		if len(existing) == 1 && !in.force {
			prev, err := document.Load(g, existing[0])
			if err != nil {
				return ch, err
			}
			if prev.SourceHash == hash {
				ch.unchanged = true
				ch.doc = prev
				return ch, nil
			}
		}
		for _, id := range existing {
			if err := document.Delete(g, id); err != nil {
				return ch, err
			}
			ch.removed = append(ch.removed, int64(id))
		}

		ch.doc, err = descriptor.ParseSource(g, in.xml, uri, descriptor.WithSourceHash(hash))
		return ch, err
	}, graph.Named("ingest"))
	parseDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return in.finish(ctx, out, err)
	}

	switch {
	case ch.unchanged:
		out.Result = Unchanged
		out.DocumentID = int64(ch.doc.ID)
		return in.finish(ctx, out, nil)
	case ch.doc == nil:
		out.Result = Skipped
	default:
		out.Result = Ingested
		out.DocumentID = int64(ch.doc.ID)
		out.Units = ch.doc.Count()
		unitsStored.Add(float64(out.Units))
	}
	out.Removed = ch.removed

	if len(ch.removed) > 0 {
		in.publish(ctx, events.Removed(ch.removed...))
	}
	if ch.doc != nil {
		in.publish(ctx, events.Updated(out.DocumentID))
	}
	return in.finish(ctx, out, nil)
}

// Remove deletes the documents parsed from uri.
func (in *Ingester) Remove(ctx context.Context, uri string) Outcome {
	out := Outcome{URI: uri}
	removed, err := graph.Execute(ctx, in.graph, func(g *graph.Graph) ([]int64, error) {
		units, err := document.MaterialUnits(g)
		if err != nil {
			return nil, err
		}
		existing, err := units.FindBySource(uri)
		if err != nil {
			return nil, err
		}
		var removed []int64
		for _, id := range existing {
			if err := document.Delete(g, id); err != nil {
				return nil, err
			}
			removed = append(removed, int64(id))
		}
		return removed, nil
	}, graph.Named("remove"))
	if err != nil {
		return in.finish(ctx, out, err)
	}

	out.Result = Removed
	out.Removed = removed
	if len(removed) > 0 {
		in.publish(ctx, events.Removed(removed...))
	}
	return in.finish(ctx, out, nil)
}

// IngestAll ingests uris with at most the configured number of workers.
// Failures are recorded per descriptor and do not stop the batch; only a
// cancelled context does.
func (in *Ingester) IngestAll(ctx context.Context, uris []string) (*Report, error) {
	uris = dedupe(uris)
	report := &Report{Outcomes: make([]Outcome, len(uris))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, uri := range uris {
		report.Outcomes[i] = Outcome{URI: uri, Result: Failed, Err: context.Canceled}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Outcomes[i].Err = err
				return err
			}
			report.Outcomes[i] = in.Ingest(gctx, uri)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// PrefixURI returns the storage URI of the directory prefix, a path
// relative to the storage root.
func PrefixURI(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return xmlstore.BaseURI
	}
	return xmlstore.BaseURI + prefix + "/"
}

// Sync ingests every descriptor below prefix, a path relative to the
// storage root, and removes documents whose descriptor under prefix has
// disappeared.
func (in *Ingester) Sync(ctx context.Context, prefix string) (*Report, error) {
	base := PrefixURI(prefix)
	uris, err := in.xml.Walk(base)
	if err != nil {
		return nil, err
	}
	report, err := in.IngestAll(ctx, uris)
	if err != nil {
		return report, err
	}

	vanished, err := in.vanished(ctx, base, uris)
	if err != nil {
		return report, err
	}
	for _, uri := range vanished {
		report.Outcomes = append(report.Outcomes, in.Remove(ctx, uri))
	}
	return report, nil
}

func (in *Ingester) vanished(ctx context.Context, base string, present []string) ([]string, error) {
	keep := make(map[string]bool, len(present))
	for _, uri := range present {
		keep[uri] = true
	}

	sources, err := graph.Execute(ctx, in.graph, func(g *graph.Graph) ([]string, error) {
		units, err := document.MaterialUnits(g)
		if err != nil {
			return nil, err
		}
		docs, err := units.Documents()
		if err != nil {
			return nil, err
		}
		var out []string
		for _, d := range docs {
			out = append(out, d.SourceURI)
		}
		return out, nil
	}, graph.ReadOnly(), graph.Named("sources"))
	if err != nil {
		return nil, err
	}

	var gone []string
	for _, src := range sources {
		if strings.HasPrefix(src, base) && !keep[src] {
			gone = append(gone, src)
		}
	}
	return dedupe(gone), nil
}

func (in *Ingester) publish(ctx context.Context, ev events.Event) {
	if in.bus == nil {
		return
	}
	if _, err := in.bus.Publish(ctx, ev); err != nil {
		logging.EventError(string(ev.Kind), ev.ID, ev.IDs, err, "stage", "publish")
	}
}

func (in *Ingester) finish(ctx context.Context, out Outcome, err error) Outcome {
	if err != nil {
		out.Result = Failed
		out.Err = err
		logging.WarnContext(ctx, "descriptor failed", "uri", out.URI, "error", err.Error())
	}
	descriptorsTotal.WithLabelValues(string(out.Result)).Inc()
	logging.IngestResult(out.URI, string(out.Result), "document_id", out.DocumentID, "units", out.Units)
	return out
}

func dedupe(uris []string) []string {
	seen := make(map[string]bool, len(uris))
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Summary returns the number of outcomes per result.
func (r *Report) Summary() map[Result]int {
	m := map[Result]int{}
	for _, o := range r.Outcomes {
		m[o.Result]++
	}
	return m
}

// Failures returns the failed outcomes sorted by URI.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Result == Failed {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}
