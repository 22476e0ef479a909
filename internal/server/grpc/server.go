// Package grpc exposes the trip services as tripkeeper.v1.TripService.
// Every method requires an access token; handlers validate the request
// shape before calling a service and translate error kinds into status
// codes.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type planSvc interface {
	CreatePlan(ctx context.Context, uid string, req *api.CreatePlanRequest) (*api.CreatePlanResponse, error)
	AppendMessage(ctx context.Context, uid string, req *api.AppendMessageRequest) (*api.AppendMessageResponse, error)
	UpdateJournalSettings(ctx context.Context, uid string, req *api.UpdateJournalSettingsRequest) (*api.UpdateJournalSettingsResponse, error)
}

type proposalSvc interface {
	Request(ctx context.Context, uid string, req *api.RequestChangeProposalRequest) (*api.RequestChangeProposalResponse, error)
	Approve(ctx context.Context, uid string, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error)
	Reject(ctx context.Context, uid string, req *api.ApproveChangeRequest) (*api.ApproveChangeResponse, error)
}

type trashSvc interface {
	Delete(ctx context.Context, uid string, req *api.DeleteToTrashRequest) (*api.DeleteToTrashResponse, error)
	Restore(ctx context.Context, uid string, req *api.RestoreFromTrashRequest) (*api.RestoreFromTrashResponse, error)
}

type journalSvc interface {
	Enqueue(ctx context.Context, uid string, req *api.EnqueueJournalJobRequest) (*api.EnqueueJournalJobResponse, error)
	RunJournalJob(ctx context.Context, uid string, req *api.RunJournalJobRequest) (*api.RunJournalJobResponse, error)
}

// Services groups the service layer the RPC handlers call into.
type Services struct {
	Plans     planSvc
	Proposals proposalSvc
	Trash     trashSvc
	Journal   journalSvc
}

type GRPCServer struct {
	address   string
	plans     planSvc
	proposals proposalSvc
	trash     trashSvc
	journal   journalSvc
	logger    logging.Logger
	jwtSecret []byte
}

var _ api.TripServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		plans:     svc.Plans,
		proposals: svc.Proposals,
		trash:     svc.Trash,
		journal:   svc.Journal,
		jwtSecret: []byte(secretKey),
	}
}

// newServer builds the grpc.Server with interceptors, TripService and the
// health service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	api.RegisterTripServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

// Run serves on the configured address until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
