package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "tripkeeper.v1.TripService"

// FullMethod returns the gRPC method path of a TripService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TripServiceServer is implemented by the RPC layer.
type TripServiceServer interface {
	CreatePlan(context.Context, *CreatePlanRequest) (*CreatePlanResponse, error)
	AppendMessage(context.Context, *AppendMessageRequest) (*AppendMessageResponse, error)
	RequestChangeProposal(context.Context, *RequestChangeProposalRequest) (*RequestChangeProposalResponse, error)
	ApproveChange(context.Context, *ApproveChangeRequest) (*ApproveChangeResponse, error)
	RejectChange(context.Context, *ApproveChangeRequest) (*ApproveChangeResponse, error)
	DeleteToTrash(context.Context, *DeleteToTrashRequest) (*DeleteToTrashResponse, error)
	RestoreFromTrash(context.Context, *RestoreFromTrashRequest) (*RestoreFromTrashResponse, error)
	EnqueueJournalJob(context.Context, *EnqueueJournalJobRequest) (*EnqueueJournalJobResponse, error)
	RunJournalJob(context.Context, *RunJournalJobRequest) (*RunJournalJobResponse, error)
	UpdateJournalSettings(context.Context, *UpdateJournalSettingsRequest) (*UpdateJournalSettingsResponse, error)
}

func unary[Req, Resp any](method string, call func(TripServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TripServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TripServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes TripService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TripServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreatePlan", TripServiceServer.CreatePlan),
		unary("AppendMessage", TripServiceServer.AppendMessage),
		unary("RequestChangeProposal", TripServiceServer.RequestChangeProposal),
		unary("ApproveChange", TripServiceServer.ApproveChange),
		unary("RejectChange", TripServiceServer.RejectChange),
		unary("DeleteToTrash", TripServiceServer.DeleteToTrash),
		unary("RestoreFromTrash", TripServiceServer.RestoreFromTrash),
		unary("EnqueueJournalJob", TripServiceServer.EnqueueJournalJob),
		unary("RunJournalJob", TripServiceServer.RunJournalJob),
		unary("UpdateJournalSettings", TripServiceServer.UpdateJournalSettings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripkeeper/v1/trip_service.json",
}

func RegisterTripServiceServer(s grpc.ServiceRegistrar, srv TripServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
