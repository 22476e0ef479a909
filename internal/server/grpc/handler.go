package grpc

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
)

type validator interface {
	Validate() error
}

// handle runs the common handler steps: caller identity, request shape,
// then the service call.
func handle[Req validator, Resp any](ctx context.Context, s *GRPCServer, req Req, call func(context.Context, string, Req) (*Resp, error)) (*Resp, error) {
	uid, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	resp, err := call(ctx, uid, req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return resp, nil
}

func (s *GRPCServer) CreatePlan(ctx context.Context, req *api.CreatePlanRequest) (*api.CreatePlanResponse, error) {
	return handle(ctx, s, req, s.plans.CreatePlan)
}

func (s *GRPCServer) AppendMessage(ctx context.Context, req *api.AppendMessageRequest) (*api.AppendMessageResponse, error) {
	return handle(ctx, s, req, s.plans.AppendMessage)
}

func (s *GRPCServer) UpdateJournalSettings(ctx context.Context, req *api.UpdateJournalSettingsRequest) (*api.UpdateJournalSettingsResponse, error) {
	return handle(ctx, s, req, s.plans.UpdateJournalSettings)
}

func (s *GRPCServer) RequestChangeProposal(ctx context.Context, req *api.RequestChangeProposalRequest) (*api.RequestChangeProposalResponse, error) {
	return handle(ctx, s, req, s.proposals.Request)
}

func (s *GRPCServer) ApproveChange(ctx context.Context, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error) {
	return handle(ctx, s, req, s.proposals.Approve)
}

func (s *GRPCServer) RejectChange(ctx context.Context, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error) {
	return handle(ctx, s, req, s.proposals.Reject)
}

func (s *GRPCServer) DeleteToTrash(ctx context.Context, req *api.DeleteToTrashRequest) (*api.DeleteToTrashResponse, error) {
	return handle(ctx, s, req, s.trash.Delete)
}

func (s *GRPCServer) RestoreFromTrash(ctx context.Context, req *api.RestoreFromTrashRequest) (*api.RestoreFromTrashResponse, error) {
	return handle(ctx, s, req, s.trash.Restore)
}

func (s *GRPCServer) EnqueueJournalJob(ctx context.Context, req *api.EnqueueJournalJobRequest) (*api.EnqueueJournalJobResponse, error) {
	return handle(ctx, s, req, s.journal.Enqueue)
}

func (s *GRPCServer) RunJournalJob(ctx context.Context, req *api.RunJournalJobRequest) (*api.RunJournalJobResponse, error) {
	return handle(ctx, s, req, s.journal.RunJournalJob)
}
