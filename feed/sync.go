package feed

import (
	"context"
	"log"

	"github.com/jonboulle/clockwork"

	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

// Sync outcome statuses reported to the trigger caller.
const (
	StatusSkipped = "skipped"
	StatusSynced  = "synced"
)

// Result summarizes one sync invocation.
type Result struct {
	Status     string
	LastUpdate string
}

// Syncer runs the full reconciliation pipeline: fetch, change-detect,
// normalize, reconcile. One synchronous pass per call; the caller is
// expected to serialize overlapping triggers, and the change-marker gate
// makes accidental duplicates harmless.
type Syncer struct {
	store   *sqlite.Store
	fetcher *Fetcher
	clock   clockwork.Clock
}

// NewSyncer creates a Syncer. The clock stamps last_synced_at and is
// injectable for tests.
func NewSyncer(store *sqlite.Store, fetcher *Fetcher, clock clockwork.Clock) *Syncer {
	return &Syncer{
		store:   store,
		fetcher: fetcher,
		clock:   clock,
	}
}

// Sync fetches the feed and reconciles it into the store. Returns a
// skipped result without touching any entity when the document's change
// marker matches the stored one. All writes from a non-skipped sync commit
// atomically; on error the store keeps its pre-sync state.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	doc, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	state, err := s.store.GetFeedState(ctx, s.fetcher.SourceURL())
	if err != nil {
		return Result{}, err
	}

	if !ShouldSync(doc.LastUpdate, state) {
		return Result{Status: StatusSkipped, LastUpdate: doc.LastUpdate}, nil
	}

	batch := BuildBatch(doc)
	if batch.Dropped > 0 {
		log.Printf("[Sync] dropped %d feed records with missing ids", batch.Dropped)
	}

	if err := s.reconcile(ctx, batch, doc.LastUpdate); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusSynced, LastUpdate: doc.LastUpdate}, nil
}

// reconcile upserts the batch and records the new change marker inside a
// single transaction. Neighborhoods and service types go first so that
// services and parades never dangle mid-pass.
func (s *Syncer) reconcile(ctx context.Context, batch Batch, marker string) error {
	now := s.clock.Now().In(localTZ)

	return s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		for _, n := range batch.Neighborhoods {
			if err := tx.UpsertNeighborhood(ctx, n); err != nil {
				return err
			}
		}

		for _, st := range batch.ServiceTypes {
			if err := tx.UpsertServiceType(ctx, st); err != nil {
				return err
			}
		}

		for _, svc := range batch.Services {
			ref, err := resolveNeighborhood(ctx, tx, svc.NeighborhoodID, "service", svc.ID)
			if err != nil {
				return err
			}
			svc.NeighborhoodID = ref
			if err := tx.UpsertService(ctx, svc); err != nil {
				return err
			}
		}

		for _, p := range batch.Parades {
			ref, err := resolveNeighborhood(ctx, tx, p.NeighborhoodID, "parade", p.ID)
			if err != nil {
				return err
			}
			p.NeighborhoodID = ref
			if err := tx.UpsertParade(ctx, p); err != nil {
				return err
			}
		}

		return tx.SaveFeedState(ctx, sqlite.FeedState{
			SourceURL:    s.fetcher.SourceURL(),
			LastSyncedAt: &now,
			ETag:         marker,
		})
	})
}

// resolveNeighborhood nulls a neighborhood reference that does not resolve
// to an existing row. Best-effort linking: the record is still persisted.
func resolveNeighborhood(ctx context.Context, tx *sqlite.Tx, id *int64, kind string, recordID int64) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	exists, err := tx.NeighborhoodExists(ctx, *id)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Printf("[Sync] %s %d references unknown neighborhood %d, storing null", kind, recordID, *id)
		return nil, nil
	}
	return id, nil
}
