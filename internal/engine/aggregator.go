package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// AssetSink receives download work discovered during aggregation. The
// asset pool implements it.
type AssetSink interface {
	Enqueue(task tracker.AssetTask)
}

// Notification is the compact post-save message emitted once per marathon
// tick for downstream consumers.
type Notification struct {
	MarathonID   int64     `json:"marathon_id"`
	Marathon     string    `json:"marathon"`
	Participants int       `json:"participants"`
	Splits       int       `json:"splits"`
	Assets       int       `json:"assets"`
	SavedAt      time.Time `json:"saved_at"`
}

// Aggregator persists one tick's crawl results and fans out the follow-up
// work that must only happen after a successful commit.
type Aggregator struct {
	store  store.Store
	sink   AssetSink
	pub    tracker.Publisher
	topic  string
	clock  tracker.Clock
	logger *zap.Logger
}

// NewAggregator builds an Aggregator. pub may be nil, which disables
// notifications.
func NewAggregator(
	st store.Store,
	sink AssetSink,
	pub tracker.Publisher,
	topic string,
	clock tracker.Clock,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		store:  st,
		sink:   sink,
		pub:    pub,
		topic:  topic,
		clock:  clock,
		logger: logger,
	}
}

// Save commits the marathon's results in a single transaction, then hands
// undownloaded assets to the pool and publishes one notification. Nothing
// is enqueued or published when the transaction fails.
func (a *Aggregator) Save(ctx context.Context, m tracker.Marathon, results []tracker.Result) error {
	batch, tasks := a.buildBatch(m, results)
	if batch.Empty() {
		return nil
	}

	if err := a.store.ApplyBatch(ctx, batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}

	a.enqueueAssets(ctx, tasks)
	a.publish(ctx, m, len(results), len(batch.Splits), len(batch.Assets))
	return nil
}

// buildBatch flattens results into the three statement groups and the
// download-task candidates that go with the asset rows.
func (a *Aggregator) buildBatch(m tracker.Marathon, results []tracker.Result) (store.Batch, []tracker.AssetTask) {
	now := a.clock.Now()

	var batch store.Batch
	var tasks []tracker.AssetTask
	for _, res := range results {
		if res.ParticipantID == 0 {
			continue
		}

		if res.Meta.RaceLabel != nil || res.Meta.RaceTotalKm != nil {
			batch.Meta = append(batch.Meta, store.MetaUpdate{
				ParticipantID: res.ParticipantID,
				RaceLabel:     res.Meta.RaceLabel,
				RaceTotalKm:   res.Meta.RaceTotalKm,
			})
		}

		for _, sp := range res.Splits {
			if sp.PointLabel == "" {
				continue
			}
			sp.SeenAt = now
			batch.Splits = append(batch.Splits, store.SplitUpsert{
				ParticipantID: res.ParticipantID,
				Split:         sp,
			})
		}

		for _, asset := range res.Assets {
			if asset.URL == "" {
				continue
			}
			if asset.Kind == "" {
				asset.Kind = tracker.AssetKindCertificate
			}
			if asset.Host == "" {
				asset.Host = tracker.Host(asset.URL)
			}
			asset.SeenAt = now
			batch.Assets = append(batch.Assets, store.AssetUpsert{
				ParticipantID: res.ParticipantID,
				Asset:         asset,
			})
			tasks = append(tasks, tracker.AssetTask{
				ParticipantID: res.ParticipantID,
				Kind:          asset.Kind,
				Host:          asset.Host,
				Dataset:       m.Usedata,
				Bib:           res.Bib,
				URL:           asset.URL,
				Referer:       res.PageURL,
			})
		}
	}
	return batch, tasks
}

// enqueueAssets hands committed assets that still lack a local file to the
// download pool. Already-downloaded assets are left alone.
func (a *Aggregator) enqueueAssets(ctx context.Context, tasks []tracker.AssetTask) {
	if a.sink == nil {
		return
	}
	for _, task := range tasks {
		stored, err := a.store.GetAsset(ctx, task.ParticipantID, task.Kind)
		if err != nil {
			a.logger.Warn("asset lookup after commit failed",
				zap.Int64("participant_id", task.ParticipantID),
				zap.String("kind", task.Kind),
				zap.Error(err),
			)
			continue
		}
		if stored.LocalPath != "" {
			continue
		}
		a.sink.Enqueue(task)
	}
}

func (a *Aggregator) publish(ctx context.Context, m tracker.Marathon, results, splits, assetRows int) {
	if a.pub == nil {
		return
	}
	n := Notification{
		MarathonID:   m.ID,
		Marathon:     m.Name,
		Participants: results,
		Splits:       splits,
		Assets:       assetRows,
		SavedAt:      a.clock.Now(),
	}
	if _, err := a.pub.Publish(ctx, a.topic, n); err != nil {
		a.logger.Warn("notification publish failed",
			zap.Int64("marathon_id", m.ID),
			zap.Error(err),
		)
	}
}
