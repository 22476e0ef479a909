// Package cli implements tripctl, a one-shot command-line client for
// TripService. Each command takes its request as a JSON document, given as
// an argument or on stdin, and prints the JSON response.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/api"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type tripService interface {
	CreatePlan(ctx context.Context, in *api.CreatePlanRequest, opts ...grpc.CallOption) (*api.CreatePlanResponse, error)
	AppendMessage(ctx context.Context, in *api.AppendMessageRequest, opts ...grpc.CallOption) (*api.AppendMessageResponse, error)
	RequestChangeProposal(ctx context.Context, in *api.RequestChangeProposalRequest, opts ...grpc.CallOption) (*api.RequestChangeProposalResponse, error)
	ApproveChange(ctx context.Context, in *api.ApproveChangeRequest, opts ...grpc.CallOption) (*api.ApproveChangeResponse, error)
	RejectChange(ctx context.Context, in *api.ApproveChangeRequest, opts ...grpc.CallOption) (*api.ApproveChangeResponse, error)
	DeleteToTrash(ctx context.Context, in *api.DeleteToTrashRequest, opts ...grpc.CallOption) (*api.DeleteToTrashResponse, error)
	RestoreFromTrash(ctx context.Context, in *api.RestoreFromTrashRequest, opts ...grpc.CallOption) (*api.RestoreFromTrashResponse, error)
	EnqueueJournalJob(ctx context.Context, in *api.EnqueueJournalJobRequest, opts ...grpc.CallOption) (*api.EnqueueJournalJobResponse, error)
	RunJournalJob(ctx context.Context, in *api.RunJournalJobRequest, opts ...grpc.CallOption) (*api.RunJournalJobResponse, error)
	UpdateJournalSettings(ctx context.Context, in *api.UpdateJournalSettingsRequest, opts ...grpc.CallOption) (*api.UpdateJournalSettingsResponse, error)
}

type runFunc func(ctx context.Context, svc tripService, body []byte) (any, error)

func rpc[Req, Resp any](m func(tripService, context.Context, *Req, ...grpc.CallOption) (*Resp, error)) runFunc {
	return func(ctx context.Context, svc tripService, body []byte) (any, error) {
		req := new(Req)
		if err := json.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		resp, err := m(svc, ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

var commands = map[string]runFunc{
	"create-plan":             rpc(tripService.CreatePlan),
	"append-message":          rpc(tripService.AppendMessage),
	"request-change-proposal": rpc(tripService.RequestChangeProposal),
	"approve-change":          rpc(tripService.ApproveChange),
	"reject-change":           rpc(tripService.RejectChange),
	"delete-to-trash":         rpc(tripService.DeleteToTrash),
	"restore-from-trash":      rpc(tripService.RestoreFromTrash),
	"enqueue-journal-job":     rpc(tripService.EnqueueJournalJob),
	"run-journal-job":         rpc(tripService.RunJournalJob),
	"update-journal-settings": rpc(tripService.UpdateJournalSettings),
}

// configFlags are consumed by the config package and never reach a command.
var configFlags = []string{"-a", "-t", "-w", "-c", "-config"}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return "usage: tripctl [-a addr] [-t token] [-w seconds] [-c config.json] <command> [request-json|-]\ncommands: " +
		strings.Join(names, ", ")
}

type App struct {
	config *config.Config
	svc    tripService
	conn   io.Closer
	in     io.Reader
	out    io.Writer
}

func NewApp(c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	conn, err := grpc.NewClient(c.ServerEndpointAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(api.AccessTokenInterceptor(c.AccessToken)),
	)
	if err != nil {
		return nil, err
	}
	return &App{config: c, svc: api.NewClient(conn), conn: conn, in: in, out: out}, nil
}

func (a *App) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

// Run executes the command named by the first non-flag argument in args.
func (a *App) Run(ctx context.Context, args []string) error {
	rest := flagx.StripArgs(args, configFlags)
	if len(rest) == 0 {
		return errors.New(usage())
	}

	run, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", rest[0], usage())
	}

	var body []byte
	if len(rest) > 1 && rest[1] != "-" {
		body = []byte(rest[1])
	} else {
		b, err := io.ReadAll(a.in)
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		body = b
	}

	if a.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.RequestTimeout)
		defer cancel()
	}

	resp, err := run(ctx, a.svc, body)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			return fmt.Errorf("%s: %s", st.Code(), st.Message())
		}
		return err
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
