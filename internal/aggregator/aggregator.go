// Package aggregator wires the Feed and Chat providers to a single
// bounded channel and dispatches every Update it carries back into the
// right provider's ProcessUpdates.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
	"github.com/aclr/agg-go/internal/pipeline"
	"github.com/aclr/agg-go/internal/storage"
)

// channelCapacity bounds the central channel: providers block once it
// fills, applying back-pressure to their own poll/listen loops.
const channelCapacity = 2000

// Aggregator owns zero or more enabled SourceProviders, keyed by the
// SourceKind each one serves.
type Aggregator struct {
	log       *zap.Logger
	store     storage.Storage
	providers map[models.SourceKind]pipeline.SourceProvider
	sender    *pipeline.Sender
	ch        chan pipeline.Result
}

func New(log *zap.Logger, store storage.Storage, providers ...pipeline.SourceProvider) *Aggregator {
	ch := make(chan pipeline.Result, channelCapacity)
	byKind := make(map[models.SourceKind]pipeline.SourceProvider, len(providers))
	for _, p := range providers {
		byKind[p.GetSourceKind()] = p
	}
	return &Aggregator{
		log:       log.Named("Aggregator"),
		store:     store,
		providers: byKind,
		sender:    pipeline.NewSender(ch),
		ch:        ch,
	}
}

// Run starts every provider's listener and dispatches from the central
// channel until ctx is cancelled. Per-update processing errors are
// logged and never stop the loop.
func (a *Aggregator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range a.providers {
		wg.Add(1)
		go func(p pipeline.SourceProvider) {
			defer wg.Done()
			p.Run(ctx, a.sender)
		}(p)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case result := <-a.ch:
			a.dispatch(ctx, result)
		}
	}
}

func (a *Aggregator) dispatch(ctx context.Context, result pipeline.Result) {
	if result.Err != nil {
		a.log.Error("provider reported an error", zap.Error(result.Err))
		return
	}
	if result.Update == nil {
		return
	}

	kind := models.SourceKindWeb
	if result.Update.Chat != nil {
		kind = models.SourceKindTelegram
	}
	provider, ok := a.providers[kind]
	if !ok {
		a.log.Warn("no provider enabled for update kind", zap.String("kind", string(kind)))
		return
	}
	if err := provider.ProcessUpdates(ctx, result.Update); err != nil {
		a.log.Error("processing update failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// SearchSource fans the query out to every enabled provider in parallel,
// additionally appends Storage's own search over already-known sources,
// and dedups the merged result by Source.ID.
func (a *Aggregator) SearchSource(ctx context.Context, query string) ([]models.Source, error) {
	type outcome struct {
		sources []models.Source
		err     error
	}
	results := make(chan outcome, len(a.providers)+1)
	var wg sync.WaitGroup
	for _, p := range a.providers {
		wg.Add(1)
		go func(p pipeline.SourceProvider) {
			defer wg.Done()
			sources, err := p.SearchSource(ctx, query)
			results <- outcome{sources: sources, err: err}
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sources, err := a.store.SearchSource(ctx, query)
		results <- outcome{sources: sources, err: err}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.Source
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.sources...)
	}

	seen := make(map[int64]struct{}, len(all))
	deduped := make([]models.Source, 0, len(all))
	for _, s := range all {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		deduped = append(deduped, s)
	}
	return deduped, nil
}

// Synchronize routes a backfill request to a single provider when kind is
// given, failing with SourceKindConflict if that provider isn't enabled;
// with a nil kind it runs every enabled provider's backfill.
func (a *Aggregator) Synchronize(ctx context.Context, depth time.Duration, kind *models.SourceKind) error {
	if kind != nil {
		provider, ok := a.providers[*kind]
		if !ok {
			return models.NewSourceKindConflict(*kind)
		}
		return provider.Synchronize(ctx, depth)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(a.providers))
	for _, p := range a.providers {
		wg.Add(1)
		go func(p pipeline.SourceProvider) {
			defer wg.Done()
			errs <- p.Synchronize(ctx, depth)
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
