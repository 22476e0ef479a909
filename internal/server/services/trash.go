package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/ident"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// TrashService soft-deletes entities into recoverable trash items, restores
// them, and purges expired items.
type TrashService struct {
	store  docstore.Store
	clock  timex.Clock
	logger logging.Logger
	opts   Options
}

func NewTrashService(store docstore.Store, clock timex.Clock, logger logging.Logger, opts Options) *TrashService {
	return &TrashService{
		store:  store,
		clock:  clock,
		logger: logger.With("module", "trash_service"),
		opts:   opts.withDefaults(),
	}
}

// PurgeReport summarizes one purge sweep.
type PurgeReport struct {
	Checked int
	Purged  int
}

// Delete moves an entity to the trash. The entity document stays in place,
// marked deleted, until its trash item is purged.
func (s *TrashService) Delete(ctx context.Context, uid string, req *api.DeleteToTrashRequest) (*api.DeleteToTrashResponse, error) {
	if _, err := assertPlanOwner(ctx, s.store, req.PlanID, uid); err != nil {
		return nil, err
	}
	entityType := models.EntityType(req.EntityType)
	entityPath, ok := models.EntityPath(req.PlanID, entityType, req.EntityID)
	if !ok {
		return nil, common.InvalidArgument("entityId is required for %s.", entityType)
	}

	entityID := req.EntityID
	if entityID == "" {
		entityID = "plan"
	}
	opID := ident.ResolveOpID(req.OpID, uid, req.PlanID, req.EntityType, entityID, ident.Millis(timex.NowMillis(s.clock)))
	trashID := ident.DocID(uid, "trash", opID)
	trashPath := models.TrashPath(trashID)

	existing, err := s.store.Get(ctx, trashPath)
	if err != nil {
		return nil, common.Internal("dedup check", err)
	}
	if existing != nil {
		return &api.DeleteToTrashResponse{TrashID: trashID, Deduped: true}, nil
	}

	deduped := false
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		deduped = false
		replay, err := tx.Get(ctx, trashPath)
		if err != nil {
			return err
		}
		if replay != nil {
			deduped = true
			return nil
		}

		target, err := tx.Get(ctx, entityPath)
		if err != nil {
			return err
		}
		if target == nil {
			return common.NotFound("Target entity not found.")
		}
		if models.String(target.Data, models.FieldOwnerUID) != uid {
			return common.PermissionDenied("Target entity access denied.")
		}
		// A system delete (an applied proposal) leaves a tombstone that the
		// user may still move to trash; a user delete already has an item.
		if models.Bool(target.Data, models.FieldIsDeleted) &&
			models.String(target.Data, models.FieldDeletedBy) != string(models.ActorSystem) {
			return common.FailedPrecondition("Target entity is already in trash.")
		}

		now := s.clock.Now()
		err = tx.Set(ctx, trashPath, docstore.Data{
			models.FieldOwnerUID:      uid,
			models.FieldPlanID:        req.PlanID,
			models.FieldEntityType:    req.EntityType,
			models.FieldEntityPath:    entityPath,
			models.FieldState:         string(models.TrashInTrash),
			models.FieldSnapshot:      target.Data,
			models.FieldDeletedAt:     now,
			models.FieldPurgeAt:       now.Add(s.opts.TrashRetention),
			models.FieldRestoredAt:    nil,
			models.FieldCreatedAt:     now,
			models.FieldUpdatedAt:     now,
			models.FieldUpdatedBy:     string(models.ActorUser),
			models.FieldSource:        string(models.SourceTrash),
			models.FieldSchemaVersion: models.SchemaVersion,
			models.FieldVersion:       1,
			models.FieldLastOpID:      opID,
		})
		if err != nil {
			return err
		}

		return tx.Merge(ctx, entityPath, models.With(models.Touch(now, models.ActorUser, models.SourceTrash), docstore.Data{
			models.FieldIsDeleted: true,
			models.FieldDeletedAt: now,
			models.FieldDeletedBy: string(models.ActorUser),
		}))
	})
	if err != nil {
		return nil, txError("delete to trash", err)
	}

	s.logger.Info(ctx, "moved to trash", "trash_id", trashID, "entity_path", entityPath, "deduped", deduped)
	return &api.DeleteToTrashResponse{TrashID: trashID, Deduped: deduped}, nil
}

// Restore puts a trashed entity back from its snapshot. Restoring an item
// twice is reported as deduped.
func (s *TrashService) Restore(ctx context.Context, uid string, req *api.RestoreFromTrashRequest) (*api.RestoreFromTrashResponse, error) {
	opID := ident.ResolveOpID(req.OpID, uid, req.TrashID, ident.Millis(timex.NowMillis(s.clock)))
	trashPath := models.TrashPath(req.TrashID)

	alreadyRestored := false
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		alreadyRestored = false
		doc, err := tx.Get(ctx, trashPath)
		if err != nil {
			return err
		}
		if doc == nil {
			return common.NotFound("trash item not found.")
		}
		item := models.DecodeTrashItem(doc)
		if item.OwnerUID != uid {
			return common.PermissionDenied("trash item access denied.")
		}
		if item.State == models.TrashRestored {
			alreadyRestored = true
			return nil
		}
		if item.State != models.TrashInTrash {
			return common.FailedPrecondition("trash item is not restorable.")
		}
		if err := docstore.ValidatePath(item.EntityPath); err != nil {
			return common.FailedPrecondition("trash item has no valid entity path.")
		}

		now := s.clock.Now()
		restored := models.With(item.Snapshot, models.Touch(now, models.ActorUser, models.SourceTrash))
		restored[models.FieldIsDeleted] = false
		restored[models.FieldDeletedAt] = nil
		restored[models.FieldDeletedBy] = nil
		if err := tx.Merge(ctx, item.EntityPath, restored); err != nil {
			return err
		}

		return tx.Merge(ctx, trashPath, models.With(models.Touch(now, models.ActorUser, models.SourceTrash), docstore.Data{
			models.FieldState:      string(models.TrashRestored),
			models.FieldRestoredAt: now,
			models.FieldVersion:    models.NextVersion(doc.Data[models.FieldVersion]),
			models.FieldLastOpID:   opID,
		}))
	})
	if err != nil {
		return nil, txError("restore from trash", err)
	}

	s.logger.Info(ctx, "restored from trash", "trash_id", req.TrashID, "deduped", alreadyRestored)
	return &api.RestoreFromTrashResponse{Restored: true, Deduped: alreadyRestored}, nil
}

// PurgeExpired physically removes trash items whose purgeAt has passed,
// one page per transaction. The referenced entity is removed with its item
// while it is still marked deleted; a purged plan takes its child documents
// and journal jobs with it. Paging stops at the first short page.
func (s *TrashService) PurgeExpired(ctx context.Context) (PurgeReport, error) {
	now := s.clock.Now()
	var report PurgeReport
	after := ""

	for {
		page, err := s.store.Query(ctx, docstore.Query{
			Collection: models.CollectionTrash,
			Filters: []docstore.Filter{
				{Field: models.FieldState, Op: docstore.OpEq, Value: string(models.TrashInTrash)},
				{Field: models.FieldPurgeAt, Op: docstore.OpLte, Value: now},
			},
			Limit:        s.opts.PurgePageSize,
			StartAfterID: after,
		})
		if err != nil {
			return report, common.Internal("query expired trash", err)
		}
		if len(page) == 0 {
			break
		}
		report.Checked += len(page)

		purged, err := s.purgePage(ctx, page, now)
		if err != nil {
			return report, err
		}
		report.Purged += purged

		if len(page) < s.opts.PurgePageSize {
			break
		}
		after = page[len(page)-1].ID()
	}

	s.logger.Info(ctx, "purgeExpiredTrash", "checked", report.Checked, "purged", report.Purged)
	return report, nil
}

// planCascadeCollections are the plan subcollections removed with a purged
// plan.
var planCascadeCollections = []string{
	models.CollectionEvents,
	models.CollectionDayMemos,
	models.CollectionMessages,
	models.CollectionProposals,
	models.CollectionJournalDays,
	models.CollectionJournalEntries,
}

// planDependents lists the documents owned by each plan in page, keyed by
// the plan path. Tx has no queries, so this runs before the page tx.
func (s *TrashService) planDependents(ctx context.Context, page []*docstore.Doc) (map[string][]string, error) {
	deps := make(map[string][]string)
	for _, candidate := range page {
		item := models.DecodeTrashItem(candidate)
		if item.EntityType != models.EntityPlan || item.PlanID == "" {
			continue
		}
		queries := make([]docstore.Query, 0, len(planCascadeCollections)+1)
		for _, c := range planCascadeCollections {
			queries = append(queries, docstore.Query{Collection: models.PlanChildCollection(item.PlanID, c)})
		}
		queries = append(queries, docstore.Query{
			Collection: models.CollectionJournalJobs,
			Filters:    []docstore.Filter{{Field: models.FieldPlanID, Op: docstore.OpEq, Value: item.PlanID}},
		})

		var paths []string
		for _, q := range queries {
			docs, err := s.store.Query(ctx, q)
			if err != nil {
				return nil, common.Internal("query plan dependents", err)
			}
			for _, d := range docs {
				paths = append(paths, d.Path)
			}
		}
		deps[item.EntityPath] = paths
	}
	return deps, nil
}

func (s *TrashService) purgePage(ctx context.Context, page []*docstore.Doc, now time.Time) (int, error) {
	deps, err := s.planDependents(ctx, page)
	if err != nil {
		return 0, err
	}

	purged := 0
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		purged = 0
		for _, candidate := range page {
			doc, err := tx.Get(ctx, candidate.Path)
			if err != nil {
				return err
			}
			if doc == nil {
				continue
			}
			item := models.DecodeTrashItem(doc)
			if !item.IsPurgeTarget(now) {
				continue
			}
			removed, err := s.purgeEntity(ctx, tx, item)
			if err != nil {
				return err
			}
			if removed {
				for _, path := range deps[item.EntityPath] {
					if err := tx.Delete(ctx, path); err != nil {
						return err
					}
				}
			}
			if err := tx.Delete(ctx, doc.Path); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, common.Internal("purge trash page", err)
	}
	return purged, nil
}

// purgeEntity deletes the item's entity if it is still marked deleted and
// reports whether it did.
func (s *TrashService) purgeEntity(ctx context.Context, tx docstore.Tx, item models.TrashItem) (bool, error) {
	if docstore.ValidatePath(item.EntityPath) != nil {
		return false, nil
	}
	entity, err := tx.Get(ctx, item.EntityPath)
	if err != nil {
		return false, err
	}
	if entity == nil || !models.Bool(entity.Data, models.FieldIsDeleted) {
		return false, nil
	}
	return true, tx.Delete(ctx, item.EntityPath)
}
