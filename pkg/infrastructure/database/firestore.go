package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	storage "github.com/pulsesync/server/pkg/storage/firestore"
	"github.com/pulsesync/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

// --- Executions ---

func (a *FirestoreAdapter) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if record.UserId == "" {
		return a.storage.OrphanedExecutions().Doc(record.Id).Set(ctx, record)
	}
	return a.storage.UserExecutions(record.UserId).Doc(record.Id).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	// The execution id does not encode its owner, so resolve through the
	// collection group before falling back to the orphaned collection.
	iter := a.Client.CollectionGroup("executions").Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		_, err := a.storage.OrphanedExecutions().Doc(id).Ref.Set(ctx, data, firestore.MergeAll)
		return err
	}
	if err != nil {
		return err
	}
	_, err = snap.Ref.Set(ctx, data, firestore.MergeAll)
	return err
}

// --- Users ---

func (a *FirestoreAdapter) GetUser(ctx context.Context, id string) (*types.UserRecord, error) {
	return a.storage.Users().Doc(id).Get(ctx)
}

func (a *FirestoreAdapter) UpdateUser(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Users().Doc(id).Update(ctx, data)
}

func (a *FirestoreAdapter) IncrementSyncCount(ctx context.Context, userID string) error {
	_, err := a.storage.Users().Doc(userID).Ref.Update(ctx, []firestore.Update{
		{Path: "sync_count_this_month", Value: firestore.Increment(1)},
	})
	return err
}

func (a *FirestoreAdapter) IncrementPreventedSyncCount(ctx context.Context, userID string) error {
	_, err := a.storage.Users().Doc(userID).Ref.Update(ctx, []firestore.Update{
		{Path: "prevented_sync_count_this_month", Value: firestore.Increment(1)},
	})
	return err
}

// ResetSyncCounts zeroes both monthly counters and stamps the month they
// now belong to.
func (a *FirestoreAdapter) ResetSyncCounts(ctx context.Context, userID string, month string) error {
	return a.storage.Users().Doc(userID).Update(ctx, map[string]interface{}{
		"sync_count_this_month":           int64(0),
		"prevented_sync_count_this_month": int64(0),
		"sync_count_month":                month,
	})
}

// --- Pending inputs ---

func (a *FirestoreAdapter) GetPendingInput(ctx context.Context, userID string, id string) (*types.PendingInput, error) {
	return a.storage.UserPendingInputs(userID).Doc(id).Get(ctx)
}

func (a *FirestoreAdapter) SetPendingInput(ctx context.Context, input *types.PendingInput) error {
	return a.storage.UserPendingInputs(input.UserId).Doc(input.Id).Set(ctx, input)
}

func (a *FirestoreAdapter) UpdatePendingInput(ctx context.Context, userID string, id string, data map[string]interface{}) error {
	return a.storage.UserPendingInputs(userID).Doc(id).Update(ctx, data)
}

// ClaimPendingInput transitions status from `from` to `to` inside a
// transaction. Exactly one of the racing workers wins the claim.
func (a *FirestoreAdapter) ClaimPendingInput(ctx context.Context, userID string, id string, from, to types.PendingInputStatus) (bool, error) {
	ref := a.storage.UserPendingInputs(userID).Doc(id).Ref
	claimed := false
	err := a.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return err
		}
		s, ok := current.(string)
		if !ok || types.PendingInputStatus(s) != from {
			return nil
		}
		claimed = true
		return tx.Set(ref, map[string]interface{}{
			"status":      string(to),
			"resolved_at": time.Now().UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return false, fmt.Errorf("claim pending input %s: %w", id, err)
	}
	return claimed, nil
}

func (a *FirestoreAdapter) ListWaitingPendingInputs(ctx context.Context) ([]*types.PendingInput, error) {
	iter := a.storage.PendingInputsGroup().
		Where("status", "==", string(types.PendingInputWaiting)).
		Documents(ctx)
	defer iter.Stop()

	var out []*types.PendingInput
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var pi types.PendingInput
		if err := snap.DataTo(&pi); err != nil {
			return nil, err
		}
		out = append(out, &pi)
	}
	return out, nil
}

// --- Counters ---

func (a *FirestoreAdapter) GetCounter(ctx context.Context, userID string, id string) (*types.Counter, error) {
	return a.storage.Counters(userID).Doc(id).Get(ctx)
}

func (a *FirestoreAdapter) SetCounter(ctx context.Context, userID string, counter *types.Counter) error {
	return a.storage.Counters(userID).Doc(counter.Id).Set(ctx, counter)
}

// --- Pipelines ---

func (a *FirestoreAdapter) GetUserPipelines(ctx context.Context, userID string) ([]*types.PipelineConfig, error) {
	return a.storage.Pipelines(userID).All(ctx)
}

// --- Pipeline runs ---

func (a *FirestoreAdapter) GetPipelineRun(ctx context.Context, userID string, id string) (*types.PipelineRun, error) {
	return a.storage.PipelineRuns(userID).Doc(id).Get(ctx)
}

// GetPipelineRunByActivityId returns the newest run that processed the given
// activity, or nil when the activity never ran.
func (a *FirestoreAdapter) GetPipelineRunByActivityId(ctx context.Context, userID string, activityID string) (*types.PipelineRun, error) {
	runs, err := a.storage.PipelineRuns(userID).Where(ctx, "activity_id", "==", activityID)
	if err != nil {
		return nil, err
	}
	var newest *types.PipelineRun
	for _, r := range runs {
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	return newest, nil
}

func (a *FirestoreAdapter) CreatePipelineRunIfAbsent(ctx context.Context, run *types.PipelineRun) (bool, error) {
	return a.storage.PipelineRuns(run.UserId).Doc(run.Id).Create(ctx, run)
}

func (a *FirestoreAdapter) UpdatePipelineRun(ctx context.Context, userID string, id string, data map[string]interface{}) error {
	return a.storage.PipelineRuns(userID).Doc(id).Update(ctx, data)
}

// MutatePipelineRun reads the run and writes mutate's result inside one
// transaction. Racing writers are serialized by Firestore, so each mutate
// callback sees the other's committed update instead of a stale snapshot.
func (a *FirestoreAdapter) MutatePipelineRun(ctx context.Context, userID string, id string, mutate func(run *types.PipelineRun) map[string]interface{}) error {
	ref := a.storage.PipelineRuns(userID).Doc(id).Ref
	return a.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var run types.PipelineRun
		if err := snap.DataTo(&run); err != nil {
			return err
		}
		data := mutate(&run)
		if data == nil {
			return nil
		}
		return tx.Set(ref, data, firestore.MergeAll)
	})
}

// --- Uploaded activities (loop-prevention ledger) ---

func (a *FirestoreAdapter) SetUploadedActivity(ctx context.Context, userID string, record *types.UploadedActivityRecord) error {
	return a.storage.UploadedActivities(userID).Doc(record.Id).Set(ctx, record)
}

func (a *FirestoreAdapter) GetUploadedActivity(ctx context.Context, userID string, destination types.Destination, destinationID string) (*types.UploadedActivityRecord, error) {
	id := types.UploadedActivityID(destination, destinationID)
	return a.storage.UploadedActivities(userID).Doc(id).Get(ctx)
}
