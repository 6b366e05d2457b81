package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
	"github.com/aclr/agg-go/internal/pipeline"
	"github.com/aclr/agg-go/internal/storage"
)

// Provider is a stateless collector plus a background poll loop,
// implementing pipeline.SourceProvider.
type Provider struct {
	Store     storage.Storage
	Collector Collector
	Log       *zap.Logger

	SleepInterval    time.Duration
	ScrapeSourceFreq time.Duration
}

func New(store storage.Storage, collector Collector, log *zap.Logger, sleepInterval, scrapeSourceFreq time.Duration) *Provider {
	return &Provider{
		Store:            store,
		Collector:        collector,
		Log:              log.Named("FeedProvider"),
		SleepInterval:    sleepInterval,
		ScrapeSourceFreq: scrapeSourceFreq,
	}
}

func (p *Provider) GetSourceKind() models.SourceKind {
	return models.SourceKindWeb
}

// Run is the poll loop: load due WEB sources, crawl each, push a
// FeedUpdate onto the central channel, sleep, repeat until ctx is done.
// Channel and crawl errors are logged and ignored — no crash.
func (p *Provider) Run(ctx context.Context, sender *pipeline.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		due, err := p.Store.GetSourcesForScrape(ctx, models.SourceKindWeb, p.ScrapeSourceFreq)
		if err != nil {
			p.Log.Error("loading due feed sources", zap.Error(err))
		}
		for _, source := range due {
			update, err := p.Collector.Fetch(ctx, source.Origin)
			if err != nil {
				p.Log.Warn("feed crawl failed", zap.String("origin", source.Origin), zap.Error(err))
				continue
			}
			sender.Send(pipeline.Result{Update: &models.Update{Feed: update}})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.SleepInterval):
		}
	}
}

// ProcessUpdates resolves the update's Source, upserts its items as
// Records, and back-fills external links on newly-inserted rows only.
func (p *Provider) ProcessUpdates(ctx context.Context, update *models.Update) error {
	if update.Feed == nil {
		return nil
	}
	feedUpdate := update.Feed

	source, err := p.findOrCreateSource(ctx, feedUpdate)
	if err != nil {
		return err
	}

	records := make([]models.NewRecord, 0, len(feedUpdate.Items))
	for _, item := range feedUpdate.Items {
		records = append(records, models.NewRecord{
			Title:          item.Title,
			SourceRecordID: item.GUID,
			SourceID:       source.ID,
			Content:        item.Content,
			Date:           item.PubDate,
			Image:          item.ImageLink,
		})
	}

	inserted, err := p.Store.SaveRecords(ctx, records)
	if err != nil {
		return err
	}
	// Feed items use their GUID as the canonical external link; set it
	// only for rows newly inserted by this call, never for re-ingests.
	for _, rec := range inserted {
		if err := p.Store.SetRecordExternalLink(ctx, rec.SourceRecordID, source.ID, rec.SourceRecordID); err != nil {
			p.Log.Error("setting external link", zap.String("guid", rec.SourceRecordID), zap.Error(err))
		}
	}

	return p.Store.SetSourceScrapedNow(ctx, source.ID)
}

func (p *Provider) findOrCreateSource(ctx context.Context, feedUpdate *models.FeedUpdate) (models.Source, error) {
	found, err := p.Store.SearchSource(ctx, feedUpdate.Link)
	if err != nil {
		return models.Source{}, err
	}
	for _, s := range found {
		if s.Origin == feedUpdate.Link {
			return s, nil
		}
	}
	saved, err := p.Store.SaveSources(ctx, []models.NewSource{{
		Name:   feedUpdate.Name,
		Origin: feedUpdate.Link,
		Kind:   models.SourceKindWeb,
		Image:  feedUpdate.Image,
	}})
	if err != nil {
		return models.Source{}, err
	}
	return saved[0], nil
}

// SearchSource prepends a scheme if the query lacks one, asks the
// collector to discover feeds there, persists any discovered feeds as new
// sources, and processes each in parallel.
func (p *Provider) SearchSource(ctx context.Context, query string) ([]models.Source, error) {
	url := query
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	discovered, err := p.Collector.DetectFeeds(ctx, url)
	if err != nil {
		return nil, models.NewHTTPCollectorError(err)
	}
	if len(discovered) == 0 {
		return []models.Source{}, nil
	}

	newSources := make([]models.NewSource, len(discovered))
	for i, d := range discovered {
		newSources[i] = models.NewSource{Name: d.Name, Origin: d.Link, Kind: models.SourceKindWeb, Image: d.Image}
	}
	saved, err := p.Store.SaveSources(ctx, newSources)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	errs := make([]error, len(discovered))
	for i, d := range discovered {
		wg.Add(1)
		go func(i int, d models.FeedUpdate) {
			defer wg.Done()
			errs[i] = p.ProcessUpdates(ctx, &models.Update{Feed: &d})
		}(i, d)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	return saved, nil
}

// Synchronize is a no-op: feeds have no distinct "history" beyond their
// current contents.
func (p *Provider) Synchronize(ctx context.Context, depth time.Duration) error {
	return nil
}
