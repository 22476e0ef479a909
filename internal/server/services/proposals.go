package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/ident"
	"github.com/dmitrijs2005/tripkeeper/internal/server/models"
	"github.com/dmitrijs2005/tripkeeper/internal/server/sanitize"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// ProposalService records change proposals and applies them on approval.
type ProposalService struct {
	store  docstore.Store
	clock  timex.Clock
	logger logging.Logger
}

func NewProposalService(store docstore.Store, clock timex.Clock, logger logging.Logger) *ProposalService {
	return &ProposalService{store: store, clock: clock, logger: logger.With("module", "proposal_service")}
}

// Request stores a pending proposal. Payloads are kept as sent and only
// sanitized when the proposal is applied.
func (s *ProposalService) Request(ctx context.Context, uid string, req *api.RequestChangeProposalRequest) (*api.RequestChangeProposalResponse, error) {
	if _, err := assertPlanOwner(ctx, s.store, req.PlanID, uid); err != nil {
		return nil, err
	}

	ops := make([]any, len(req.Operations))
	for i, op := range req.Operations {
		for _, payload := range []map[string]any{op.Patch, op.DraftData} {
			if _, err := sanitize.Normalize(payload); err != nil {
				return nil, err
			}
		}
		ops[i] = op.ToData()
	}

	now := s.clock.Now()
	opID := ident.ResolveOpID(req.OpID, uid, req.PlanID, req.ProposalType, ident.Millis(now.UnixMilli()))
	proposalID := ident.DocID(uid, req.PlanID, "proposal", opID)

	var bundleID any
	if req.BundleID != nil {
		bundleID = *req.BundleID
	}

	data := models.With(models.NewAudit(now, models.ActorSystem, models.SourceChat, opID), docstore.Data{
		models.FieldOwnerUID:      uid,
		models.FieldPlanID:        req.PlanID,
		models.FieldProposalType:  req.ProposalType,
		models.FieldApprovalState: string(models.ApprovalPending),
		models.FieldBundleID:      bundleID,
		models.FieldOperations:    ops,
		"snapshotBefore":          nil,
		"snapshotAfter":           nil,
		models.FieldRequestedAt:   now,
		models.FieldApprovedAt:    nil,
		models.FieldRejectedAt:    nil,
		models.FieldExpiresAt:     nil,
	})

	path := models.PlanChildPath(req.PlanID, models.CollectionProposals, proposalID)
	deduped, err := createOnce(ctx, s.store, path, data)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "proposal requested", "plan_id", req.PlanID, "proposal_id", proposalID,
		"operations", len(req.Operations), "deduped", deduped)
	return &api.RequestChangeProposalResponse{ProposalID: proposalID, Deduped: deduped}, nil
}

// targetPath resolves where operation i of a proposal writes. Without a
// targetId the id is derived from the proposal and the operation's index.
func targetPath(planID, proposalID string, i int, op models.Operation) string {
	if op.TargetType == models.TargetPlan {
		return models.PlanPath(planID)
	}
	collection := op.TargetType.Collection()
	id := op.TargetID
	if id == "" {
		id = ident.DocID(planID, proposalID, collection, strconv.Itoa(i))
	}
	return models.PlanChildPath(planID, collection, id)
}

func sourceFor(t models.TargetType) models.Source {
	if t == models.TargetPlan {
		return models.SourceChat
	}
	return models.SourceCalendar
}

// loadPending reads a proposal inside tx and checks that uid may decide it.
func loadPending(ctx context.Context, tx docstore.Tx, path, uid string) (*docstore.Doc, error) {
	doc, err := tx.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, common.NotFound("Proposal not found.")
	}
	if models.String(doc.Data, models.FieldOwnerUID) != uid {
		return nil, common.PermissionDenied("Proposal access denied.")
	}
	if models.ApprovalState(models.String(doc.Data, models.FieldApprovalState)) != models.ApprovalPending {
		return nil, common.FailedPrecondition("Proposal is not pending.")
	}
	return doc, nil
}

// Approve applies every operation of a pending proposal and marks it
// approved, all in one transaction. Any failing operation aborts the whole
// approval and leaves the proposal pending.
func (s *ProposalService) Approve(ctx context.Context, uid string, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error) {
	if _, err := assertPlanOwner(ctx, s.store, req.PlanID, uid); err != nil {
		return nil, err
	}
	opID := ident.ResolveOpID(req.OpID, uid, req.PlanID, req.ProposalID, ident.Millis(timex.NowMillis(s.clock)))
	proposalPath := models.PlanChildPath(req.PlanID, models.CollectionProposals, req.ProposalID)

	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := loadPending(ctx, tx, proposalPath, uid)
		if err != nil {
			return err
		}
		proposal, err := models.DecodeProposal(doc)
		if err != nil {
			if errors.Is(err, models.ErrInvalidOperations) {
				return common.FailedPrecondition("Invalid proposal operation format.")
			}
			return err
		}

		now := s.clock.Now()
		for i, op := range proposal.Operations {
			if err := s.apply(ctx, tx, uid, req.PlanID, req.ProposalID, i, op, now); err != nil {
				return err
			}
		}

		return tx.Merge(ctx, proposalPath, models.With(models.Touch(now, models.ActorUser, models.SourceChat), docstore.Data{
			models.FieldApprovalState: string(models.ApprovalApproved),
			models.FieldApprovedAt:    now,
			models.FieldVersion:       models.NextVersion(proposal.Version),
			models.FieldLastOpID:      opID,
		}))
	})
	if err != nil {
		return nil, txError("approve proposal", err)
	}

	s.logger.Info(ctx, "proposal approved", "plan_id", req.PlanID, "proposal_id", req.ProposalID)
	return &api.ApproveChangeResponse{ProposalID: req.ProposalID, ApprovalState: string(models.ApprovalApproved)}, nil
}

func (s *ProposalService) apply(ctx context.Context, tx docstore.Tx, uid, planID, proposalID string, i int, op models.Operation, now time.Time) error {
	path := targetPath(planID, proposalID, i, op)
	source := sourceFor(op.TargetType)

	target, err := tx.Get(ctx, path)
	if err != nil {
		return err
	}

	switch op.Op {
	case models.OpCreate:
		if op.TargetType == models.TargetPlan {
			return common.InvalidArgument("plan create is not supported in approveChange.")
		}
		if target != nil && models.String(target.Data, models.FieldOwnerUID) != uid {
			return common.PermissionDenied("Operation target access denied.")
		}
		draft, err := sanitize.Payload(op.TargetType, op.DraftData)
		if err != nil {
			return err
		}
		data := models.With(draft, models.NewAudit(now, models.ActorSystem, source, ""))
		data[models.FieldOwnerUID] = uid
		data[models.FieldPlanID] = planID
		return tx.Set(ctx, path, data)

	case models.OpUpdate:
		if target == nil {
			return common.NotFound("Operation target not found.")
		}
		if models.String(target.Data, models.FieldOwnerUID) != uid {
			return common.PermissionDenied("Operation target access denied.")
		}
		patch, err := sanitize.Payload(op.TargetType, op.Patch)
		if err != nil {
			return err
		}
		return tx.Merge(ctx, path, models.With(patch, models.Touch(now, models.ActorSystem, source)))

	case models.OpDelete:
		if target == nil {
			return common.NotFound("Operation target not found.")
		}
		if models.String(target.Data, models.FieldOwnerUID) != uid {
			return common.PermissionDenied("Operation target access denied.")
		}
		return tx.Merge(ctx, path, models.With(models.Touch(now, models.ActorSystem, source), docstore.Data{
			models.FieldIsDeleted: true,
			models.FieldDeletedAt: now,
			models.FieldDeletedBy: string(models.ActorSystem),
		}))
	}
	return common.FailedPrecondition("Invalid proposal operation format.")
}

// Reject moves a pending proposal to rejected without touching its targets.
func (s *ProposalService) Reject(ctx context.Context, uid string, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error) {
	if _, err := assertPlanOwner(ctx, s.store, req.PlanID, uid); err != nil {
		return nil, err
	}
	opID := ident.ResolveOpID(req.OpID, uid, req.PlanID, req.ProposalID, "reject", ident.Millis(timex.NowMillis(s.clock)))
	proposalPath := models.PlanChildPath(req.PlanID, models.CollectionProposals, req.ProposalID)

	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := loadPending(ctx, tx, proposalPath, uid)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		return tx.Merge(ctx, proposalPath, models.With(models.Touch(now, models.ActorUser, models.SourceChat), docstore.Data{
			models.FieldApprovalState: string(models.ApprovalRejected),
			models.FieldRejectedAt:    now,
			models.FieldVersion:       models.NextVersion(doc.Data[models.FieldVersion]),
			models.FieldLastOpID:      opID,
		}))
	})
	if err != nil {
		return nil, txError("reject proposal", err)
	}

	s.logger.Info(ctx, "proposal rejected", "plan_id", req.PlanID, "proposal_id", req.ProposalID)
	return &api.ApproveChangeResponse{ProposalID: req.ProposalID, ApprovalState: string(models.ApprovalRejected)}, nil
}
