package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/services"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "secret"

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), Services{}, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), Services{}, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, srv.Run(ctx))
}

// startBufServer serves real services backed by a memory store and returns
// a client connection to it.
func startBufServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	store := docstore.NewMemoryStore()
	clock := timex.NewManualClock(time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC))
	opts := services.DefaultOptions()
	srv := NewGRPCServer("bufnet", logging.Nop(), Services{
		Plans:     services.NewPlanService(store, clock, logging.Nop()),
		Proposals: services.NewProposalService(store, clock, logging.Nop()),
		Trash:     services.NewTrashService(store, clock, logging.Nop(), opts),
		Journal:   services.NewJournalService(store, clock, logging.Nop(), nil, opts),
	}, testSecret)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func tokenFor(t *testing.T, uid string) string {
	t.Helper()
	tok, err := auth.GenerateToken(uid, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

func TestEndToEnd(t *testing.T) {
	conn := startBufServer(t)
	client := api.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("health is serving without a token", func(t *testing.T) {
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	})

	planReq := &api.CreatePlanRequest{
		Title: "Seoul", Destination: "KR", StartDateLocal: "2026-02-17",
		EndDateLocal: "2026-02-20", PlanTimezone: "Asia/Seoul", IsForeign: true,
	}

	t.Run("missing token", func(t *testing.T) {
		_, err := client.CreatePlan(ctx, planReq)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("expired token", func(t *testing.T) {
		tok, err := auth.GenerateToken("u1", []byte(testSecret), -time.Minute)
		require.NoError(t, err)
		_, err = client.CreatePlan(api.WithAccessToken(ctx, tok), planReq)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.Equal(t, "token expired", status.Convert(err).Message())
	})

	u1 := api.WithAccessToken(ctx, tokenFor(t, "u1"))
	u2 := api.WithAccessToken(ctx, tokenFor(t, "u2"))

	first, err := client.CreatePlan(u1, planReq)
	require.NoError(t, err)
	again, err := client.CreatePlan(u1, planReq)
	require.NoError(t, err)
	assert.False(t, first.Deduped)
	assert.True(t, again.Deduped)
	assert.Equal(t, first.PlanID, again.PlanID)

	t.Run("invalid request", func(t *testing.T) {
		bad := *planReq
		bad.StartDateLocal = "17.02.2026"
		_, err := client.CreatePlan(u1, &bad)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("another user's plan", func(t *testing.T) {
		_, err := client.AppendMessage(u2, &api.AppendMessageRequest{PlanID: first.PlanID, Role: "user"})
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
		assert.Equal(t, "Plan not found or access denied.", status.Convert(err).Message())
	})

	job, err := client.EnqueueJournalJob(u1, &api.EnqueueJournalJobRequest{PlanID: first.PlanID, DateLocal: "2026-02-17", Phase: "generate"})
	require.NoError(t, err)
	run, err := client.RunJournalJob(u1, &api.RunJournalJobRequest{JobID: job.JobID})
	require.NoError(t, err)
	assert.Equal(t, "done", run.Result)

	t.Run("unknown job", func(t *testing.T) {
		_, err := client.RunJournalJob(u1, &api.RunJournalJobRequest{JobID: "nope"})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	del, err := client.DeleteToTrash(u1, &api.DeleteToTrashRequest{PlanID: first.PlanID, EntityType: "journalDay", EntityID: "2026-02-17"})
	require.NoError(t, err)
	restored, err := client.RestoreFromTrash(u1, &api.RestoreFromTrashRequest{TrashID: del.TrashID})
	require.NoError(t, err)
	assert.True(t, restored.Restored)
}
