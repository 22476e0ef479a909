// Package services contains the server-side business logic: plan and chat
// writes, change proposals, the trash lifecycle and the journal job runner.
//
// Every caller-facing method takes the verified caller uid and an already
// validated request. Pure creates are deduplicated by a read of their
// deterministic id; anything that reads before it writes runs inside
// docstore.Store.RunTx.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
)

// Options tunes retention, paging and retry behavior.
type Options struct {
	TrashRetention    time.Duration
	PurgePageSize     int
	DueBatchSize      int
	ReconcilePageSize int
	MaxAttempts       int
	RetryDelay        time.Duration
}

func DefaultOptions() Options {
	return Options{
		TrashRetention:    30 * 24 * time.Hour,
		PurgePageSize:     500,
		DueBatchSize:      20,
		ReconcilePageSize: 100,
		MaxAttempts:       3,
		RetryDelay:        5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TrashRetention <= 0 {
		o.TrashRetention = d.TrashRetention
	}
	if o.PurgePageSize <= 0 {
		o.PurgePageSize = d.PurgePageSize
	}
	if o.DueBatchSize <= 0 {
		o.DueBatchSize = d.DueBatchSize
	}
	if o.ReconcilePageSize <= 0 {
		o.ReconcilePageSize = d.ReconcilePageSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	return o
}

// assertPlanOwner loads a plan the caller owns. A missing plan and someone
// else's plan are indistinguishable to the caller.
func assertPlanOwner(ctx context.Context, store docstore.Store, planID, uid string) (*models.Plan, error) {
	doc, err := store.Get(ctx, models.PlanPath(planID))
	if err != nil {
		return nil, common.Internal("load plan", err)
	}
	if doc == nil || models.String(doc.Data, models.FieldOwnerUID) != uid {
		return nil, common.PermissionDenied("Plan not found or access denied.")
	}
	p := models.DecodePlan(doc)
	return &p, nil
}

// createOnce writes data at path unless a document is already there, in
// which case it reports deduped. A concurrent replay that wins the race
// between the read and the write is reported as deduped as well.
func createOnce(ctx context.Context, store docstore.Store, path string, data docstore.Data) (bool, error) {
	existing, err := store.Get(ctx, path)
	if err != nil {
		return false, common.Internal("dedup check", err)
	}
	if existing != nil {
		return true, nil
	}
	if err := store.Create(ctx, path, data); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return true, nil
		}
		return false, common.Internal(fmt.Sprintf("create %s", docstore.Collection(path)), err)
	}
	return false, nil
}

// txError keeps classified errors intact and wraps store failures.
func txError(op string, err error) error {
	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}
	return common.Internal(op, err)
}
