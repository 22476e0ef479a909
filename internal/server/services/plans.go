package services

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/ident"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// PlanService creates plans and chat messages and stores journal settings.
type PlanService struct {
	store  docstore.Store
	clock  timex.Clock
	logger logging.Logger
}

func NewPlanService(store docstore.Store, clock timex.Clock, logger logging.Logger) *PlanService {
	return &PlanService{store: store, clock: clock, logger: logger.With("module", "plan_service")}
}

// CreatePlan creates a plan owned by uid. Without an explicit opId the
// replay key is the title and dates, so resubmitting the same form creates
// nothing new.
func (s *PlanService) CreatePlan(ctx context.Context, uid string, req *api.CreatePlanRequest) (*api.CreatePlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := timex.LoadLocation(req.PlanTimezone); err != nil {
		return nil, err
	}

	opID := ident.ResolveOpID(req.OpID, uid, req.Title, req.StartDateLocal, req.EndDateLocal)
	planID := ident.DocID(uid, "plan", opID)

	data := models.With(models.NewAudit(s.clock.Now(), models.ActorUser, models.SourceChat, opID), docstore.Data{
		models.FieldOwnerUID:         uid,
		models.FieldTitle:            req.Title,
		models.FieldDestination:      req.Destination,
		models.FieldStartDateLocal:   req.StartDateLocal,
		models.FieldEndDateLocal:     req.EndDateLocal,
		models.FieldPlanTimezone:     req.PlanTimezone,
		models.FieldIsForeign:        req.IsForeign,
		models.FieldJournalEnabledAt: nil,
	})

	deduped, err := createOnce(ctx, s.store, models.PlanPath(planID), data)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "plan created", "plan_id", planID, "deduped", deduped)
	return &api.CreatePlanResponse{PlanID: planID, Deduped: deduped}, nil
}

// AppendMessage adds a chat message to a plan the caller owns.
func (s *PlanService) AppendMessage(ctx context.Context, uid string, req *api.AppendMessageRequest) (*api.AppendMessageResponse, error) {
	if _, err := assertPlanOwner(ctx, s.store, req.PlanID, uid); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	opID := ident.ResolveOpID(req.OpID, uid, req.PlanID, req.Role, ident.Millis(now.UnixMilli()))
	messageID := ident.DocID(uid, req.PlanID, "message", opID)

	imagePaths := req.ImagePaths
	if imagePaths == nil {
		imagePaths = []string{}
	}
	var text, linked any
	if req.Text != nil {
		text = *req.Text
	}
	if req.LinkedProposalID != nil {
		linked = *req.LinkedProposalID
	}

	data := models.With(models.NewAudit(now, models.ActorUser, models.SourceChat, opID), docstore.Data{
		models.FieldOwnerUID: uid,
		models.FieldPlanID:   req.PlanID,
		"role":               req.Role,
		"text":               text,
		"imagePaths":         imagePaths,
		"linkedProposalId":   linked,
	})

	path := models.PlanChildPath(req.PlanID, models.CollectionMessages, messageID)
	deduped, err := createOnce(ctx, s.store, path, data)
	if err != nil {
		return nil, err
	}
	return &api.AppendMessageResponse{MessageID: messageID, Deduped: deduped}, nil
}

// UpdateJournalSettings stores the caller's generate-without-data flag and,
// when a plan is named, switches journaling for that plan. Both writes
// commit together.
func (s *PlanService) UpdateJournalSettings(ctx context.Context, uid string, req *api.UpdateJournalSettingsRequest) (*api.UpdateJournalSettingsResponse, error) {
	var result bool
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := s.clock.Now()

		settingsPath := models.UserSettingsPath(uid)
		settings, err := tx.Get(ctx, settingsPath)
		if err != nil {
			return err
		}
		result = models.GenerateWithoutData(settings)

		if req.GenerateWithoutData != nil {
			result = *req.GenerateWithoutData
			patch := models.With(models.Touch(now, models.ActorUser, models.SourceSettings), docstore.Data{
				models.FieldOwnerUID:            uid,
				models.FieldGenerateWithoutData: result,
			})
			if settings == nil {
				patch = models.With(models.NewAudit(now, models.ActorUser, models.SourceSettings, ""), patch)
			} else {
				patch[models.FieldVersion] = models.NextVersion(settings.Data[models.FieldVersion])
			}
			if err := tx.Merge(ctx, settingsPath, patch); err != nil {
				return err
			}
		}

		if req.JournalEnabled == nil {
			return nil
		}
		planPath := models.PlanPath(req.PlanID)
		plan, err := tx.Get(ctx, planPath)
		if err != nil {
			return err
		}
		if plan == nil || models.String(plan.Data, models.FieldOwnerUID) != uid {
			return common.PermissionDenied("Plan not found or access denied.")
		}
		var enabledAt any
		if *req.JournalEnabled {
			enabledAt = now
			if prev := models.Time(plan.Data, models.FieldJournalEnabledAt); prev != nil {
				enabledAt = *prev
			}
		}
		return tx.Merge(ctx, planPath, models.With(models.Touch(now, models.ActorUser, models.SourceSettings), docstore.Data{
			models.FieldJournalEnabledAt: enabledAt,
			models.FieldVersion:          models.NextVersion(plan.Data[models.FieldVersion]),
		}))
	})
	if err != nil {
		return nil, txError("update journal settings", err)
	}
	return &api.UpdateJournalSettingsResponse{GenerateWithoutData: result, Updated: true}, nil
}
