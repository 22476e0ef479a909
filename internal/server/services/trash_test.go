package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")
	eventPath := models.PlanChildPath(planID, models.CollectionEvents, "e1")
	f.put(t, eventPath, docstore.Data{
		models.FieldOwnerUID: "u1", "title": "Museum", models.FieldIsDeleted: false, models.FieldVersion: 3,
	})

	req := &api.DeleteToTrashRequest{OpID: "del-1", PlanID: planID, EntityType: "event", EntityID: "e1"}
	del, err := f.trash.Delete(ctx, "u1", req)
	require.NoError(t, err)
	assert.False(t, del.Deduped)

	event := f.get(t, eventPath)
	assert.Equal(t, true, event.Data[models.FieldIsDeleted])
	assert.Equal(t, "user", event.Data[models.FieldDeletedBy])

	item := models.DecodeTrashItem(f.get(t, models.TrashPath(del.TrashID)))
	assert.Equal(t, models.TrashInTrash, item.State)
	assert.Equal(t, eventPath, item.EntityPath)
	assert.Equal(t, "Museum", item.Snapshot["title"])
	assert.Equal(t, false, item.Snapshot[models.FieldIsDeleted])
	require.NotNil(t, item.PurgeAt)
	assert.True(t, item.PurgeAt.Equal(t0.Add(30*24*time.Hour)))

	t.Run("replay is deduped", func(t *testing.T) {
		again, err := f.trash.Delete(ctx, "u1", req)
		require.NoError(t, err)
		assert.True(t, again.Deduped)
		assert.Equal(t, del.TrashID, again.TrashID)
		assert.Equal(t, 1, f.store.Len("trash/"))
	})

	t.Run("deleting a deleted entity again fails", func(t *testing.T) {
		_, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: "del-2", PlanID: planID, EntityType: "event", EntityID: "e1"})
		requireKind(t, err, common.KindFailedPrecondition)
	})

	t.Run("someone else cannot restore", func(t *testing.T) {
		_, err := f.trash.Restore(ctx, "u2", &api.RestoreFromTrashRequest{TrashID: del.TrashID})
		requireKind(t, err, common.KindPermissionDenied)
	})

	f.clock.Advance(time.Hour)
	res, err := f.trash.Restore(ctx, "u1", &api.RestoreFromTrashRequest{TrashID: del.TrashID})
	require.NoError(t, err)
	assert.True(t, res.Restored)
	assert.False(t, res.Deduped)

	event = f.get(t, eventPath)
	assert.Equal(t, false, event.Data[models.FieldIsDeleted])
	assert.Nil(t, event.Data[models.FieldDeletedAt])
	assert.Equal(t, "Museum", event.Data["title"])
	assert.Equal(t, float64(3), event.Data[models.FieldVersion])

	item = models.DecodeTrashItem(f.get(t, models.TrashPath(del.TrashID)))
	assert.Equal(t, models.TrashRestored, item.State)
	require.NotNil(t, item.RestoredAt)

	again, err := f.trash.Restore(ctx, "u1", &api.RestoreFromTrashRequest{TrashID: del.TrashID})
	require.NoError(t, err)
	assert.True(t, again.Restored)
	assert.True(t, again.Deduped)
}

func TestDeleteToTrash_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")
	f.put(t, models.PlanChildPath(planID, models.CollectionDayMemos, "m-foreign"), docstore.Data{models.FieldOwnerUID: "u2"})

	tests := []struct {
		name string
		uid  string
		req  *api.DeleteToTrashRequest
		kind common.Kind
	}{
		{"missing entity", "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "event", EntityID: "nope"}, common.KindNotFound},
		{"entity owned by someone else", "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "dayMemo", EntityID: "m-foreign"}, common.KindPermissionDenied},
		{"plan owned by someone else", "u2", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "plan"}, common.KindPermissionDenied},
		{"entity id required", "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "journalDay"}, common.KindInvalidArgument},
		{"missing trash item", "u1", nil, common.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.req == nil {
				_, err = f.trash.Restore(ctx, tt.uid, &api.RestoreFromTrashRequest{TrashID: "missing"})
			} else {
				_, err = f.trash.Delete(ctx, tt.uid, tt.req)
			}
			requireKind(t, err, tt.kind)
		})
	}
	assert.Equal(t, 0, f.store.Len("trash/"))
}

func TestDeleteToTrash_Plan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")

	resp, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "plan"})
	require.NoError(t, err)

	item := models.DecodeTrashItem(f.get(t, models.TrashPath(resp.TrashID)))
	assert.Equal(t, models.EntityPlan, item.EntityType)
	assert.Equal(t, models.PlanPath(planID), item.EntityPath)
	assert.True(t, models.DecodePlan(f.get(t, models.PlanPath(planID))).IsDeleted)
}

func TestPurgeExpired_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")
	for _, id := range []string{"e1", "e2"} {
		f.put(t, models.PlanChildPath(planID, models.CollectionEvents, id), docstore.Data{models.FieldOwnerUID: "u1"})
	}

	kept, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: "a", PlanID: planID, EntityType: "event", EntityID: "e1"})
	require.NoError(t, err)
	restored, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: "b", PlanID: planID, EntityType: "event", EntityID: "e2"})
	require.NoError(t, err)
	_, err = f.trash.Restore(ctx, "u1", &api.RestoreFromTrashRequest{TrashID: restored.TrashID})
	require.NoError(t, err)

	f.clock.Set(t0.Add(30*24*time.Hour - time.Second))
	report, err := f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, PurgeReport{}, report)

	f.clock.Set(t0.Add(30*24*time.Hour + time.Second))
	report, err = f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, PurgeReport{Checked: 1, Purged: 1}, report)

	assert.Nil(t, f.get(t, models.TrashPath(kept.TrashID)))
	assert.Nil(t, f.get(t, models.PlanChildPath(planID, models.CollectionEvents, "e1")))
	assert.NotNil(t, f.get(t, models.TrashPath(restored.TrashID)))
	assert.NotNil(t, f.get(t, models.PlanChildPath(planID, models.CollectionEvents, "e2")))
}

func TestPurgeExpired_Pages(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.trash = NewTrashService(f.store, f.clock, logging.Nop(), Options{PurgePageSize: 2})
	})
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "UTC")

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("e%d", i)
		f.put(t, models.PlanChildPath(planID, models.CollectionEvents, id), docstore.Data{models.FieldOwnerUID: "u1"})
		_, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: id, PlanID: planID, EntityType: "event", EntityID: id})
		require.NoError(t, err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	report, err := f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, PurgeReport{Checked: 5, Purged: 5}, report)
	assert.Equal(t, 0, f.store.Len("trash/"))
	assert.Equal(t, 0, f.store.Len(models.PlanChildCollection(planID, models.CollectionEvents)+"/"))
}

func TestPurgeExpired_KeepsRestoredEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "UTC")
	eventPath := models.PlanChildPath(planID, models.CollectionEvents, "e1")
	f.put(t, eventPath, docstore.Data{models.FieldOwnerUID: "u1"})

	_, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: "x", PlanID: planID, EntityType: "event", EntityID: "e1"})
	require.NoError(t, err)

	// the entity comes back through another path while its item is still in trash
	require.NoError(t, f.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Merge(ctx, eventPath, docstore.Data{models.FieldIsDeleted: false})
	}))

	f.clock.Advance(31 * 24 * time.Hour)
	report, err := f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.NotNil(t, f.get(t, eventPath))
}

func TestDeleteToTrash_Tombstones(t *testing.T) {
	tests := []struct {
		name      string
		deletedBy models.Actor
		wantErr   bool
	}{
		{"applied proposal delete can be trashed", models.ActorSystem, false},
		{"user delete is already in trash", models.ActorUser, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")
			eventPath := models.PlanChildPath(planID, models.CollectionEvents, "e1")
			f.put(t, eventPath, docstore.Data{
				models.FieldOwnerUID: "u1", "title": "Museum",
				models.FieldIsDeleted: true, models.FieldDeletedAt: t0, models.FieldDeletedBy: string(tt.deletedBy),
			})

			del, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "event", EntityID: "e1"})
			if tt.wantErr {
				requireKind(t, err, common.KindFailedPrecondition)
				assert.Equal(t, 0, f.store.Len("trash/"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user", f.get(t, eventPath).Data[models.FieldDeletedBy])

			_, err = f.trash.Restore(ctx, "u1", &api.RestoreFromTrashRequest{TrashID: del.TrashID})
			require.NoError(t, err)
			event := f.get(t, eventPath)
			assert.Equal(t, false, event.Data[models.FieldIsDeleted])
			assert.Nil(t, event.Data[models.FieldDeletedBy])
			assert.Equal(t, "Museum", event.Data["title"])
		})
	}
}

func TestPurgeExpired_PlanTakesDependents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "Asia/Seoul")
	otherID := f.createPlan(t, "u1", "Other", "Asia/Seoul")

	f.putEvent(t, planID, "e1", docstore.Data{"title": "Palace", "dateLocal": "2026-02-17"})
	f.putEvent(t, planID, "e2", docstore.Data{"title": "Market", "dateLocal": "2026-02-18"})
	f.put(t, models.PlanChildPath(planID, models.CollectionMessages, "m1"), docstore.Data{models.FieldOwnerUID: "u1", "text": "hi"})
	f.put(t, models.PlanChildPath(planID, models.CollectionDayMemos, "d1"), docstore.Data{models.FieldOwnerUID: "u1"})
	jobID := f.enqueue(t, "u1", planID, "2026-02-17", models.PhaseGenerate)
	otherJobID := f.enqueue(t, "u1", otherID, "2026-02-17", models.PhaseGenerate)
	f.putEvent(t, otherID, "e1", docstore.Data{"title": "Kept", "dateLocal": "2026-02-17"})

	_, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{PlanID: planID, EntityType: "plan"})
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	report, err := f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, PurgeReport{Checked: 1, Purged: 1}, report)

	assert.Nil(t, f.get(t, models.PlanPath(planID)))
	assert.Nil(t, f.get(t, models.JobPath(jobID)))
	for _, c := range planCascadeCollections {
		assert.Equal(t, 0, f.store.Len(models.PlanChildCollection(planID, c)+"/"), c)
	}

	assert.NotNil(t, f.get(t, models.PlanPath(otherID)))
	assert.NotNil(t, f.get(t, models.JobPath(otherJobID)))
	assert.NotNil(t, f.get(t, models.PlanChildPath(otherID, models.CollectionEvents, "e1")))
}

func TestPurgeExpired_RestoredPlanKeepsDependents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := f.createPlan(t, "u1", "Trip", "UTC")
	f.putEvent(t, planID, "e1", docstore.Data{"title": "Palace", "dateLocal": "2026-02-17"})

	_, err := f.trash.Delete(ctx, "u1", &api.DeleteToTrashRequest{OpID: "p", PlanID: planID, EntityType: "plan"})
	require.NoError(t, err)
	require.NoError(t, f.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Merge(ctx, models.PlanPath(planID), docstore.Data{models.FieldIsDeleted: false})
	}))

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.trash.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.NotNil(t, f.get(t, models.PlanPath(planID)))
	assert.NotNil(t, f.get(t, models.PlanChildPath(planID, models.CollectionEvents, "e1")))
}
