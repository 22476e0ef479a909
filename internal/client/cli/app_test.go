package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeService implements only the calls a test needs; the embedded nil
// interface panics on anything else.
type fakeService struct {
	tripService
	gotJob  *api.RunJournalJobRequest
	gotPlan *api.CreatePlanRequest
	err     error
}

func (f *fakeService) RunJournalJob(ctx context.Context, in *api.RunJournalJobRequest, _ ...grpc.CallOption) (*api.RunJournalJobResponse, error) {
	f.gotJob = in
	if f.err != nil {
		return nil, f.err
	}
	return &api.RunJournalJobResponse{JobID: in.JobID, Result: "done"}, nil
}

func (f *fakeService) CreatePlan(ctx context.Context, in *api.CreatePlanRequest, _ ...grpc.CallOption) (*api.CreatePlanResponse, error) {
	f.gotPlan = in
	return &api.CreatePlanResponse{PlanID: "p1"}, nil
}

func newTestApp(svc tripService, stdin string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{RequestTimeout: time.Second},
		svc:    svc,
		in:     strings.NewReader(stdin),
		out:    out,
	}, out
}

func TestRun_RequestFromArgument(t *testing.T) {
	f := &fakeService{}
	app, out := newTestApp(f, "")

	err := app.Run(context.Background(), []string{"-a", ":1", "-t", "tok", "run-journal-job", `{"jobId":"j1"}`})
	require.NoError(t, err)
	assert.Equal(t, "j1", f.gotJob.JobID)
	assert.JSONEq(t, `{"jobId":"j1","result":"done"}`, out.String())
}

func TestRun_RequestFromStdin(t *testing.T) {
	f := &fakeService{}
	app, out := newTestApp(f, `{"title":"Seoul","planTimezone":"Asia/Seoul","isForeign":true}`)

	require.NoError(t, app.Run(context.Background(), []string{"create-plan", "-"}))
	assert.Equal(t, "Seoul", f.gotPlan.Title)
	assert.True(t, f.gotPlan.IsForeign)
	assert.Contains(t, out.String(), `"planId": "p1"`)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		svc     *fakeService
		args    []string
		wantErr string
	}{
		{"no command", &fakeService{}, []string{"-a", ":1"}, "usage: tripctl"},
		{"unknown command", &fakeService{}, []string{"purge"}, `unknown command "purge"`},
		{"bad json", &fakeService{}, []string{"run-journal-job", "{"}, "decode request"},
		{"status error", &fakeService{err: status.Error(codes.NotFound, "journal job not found.")},
			[]string{"run-journal-job", `{"jobId":"x"}`}, "NotFound: journal job not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, out := newTestApp(tt.svc, "")
			err := app.Run(context.Background(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out.String())
		})
	}
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(&config.Config{ServerEndpointAddr: "127.0.0.1:1", AccessToken: "tok"}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.NoError(t, app.Close())
}
