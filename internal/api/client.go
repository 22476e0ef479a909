package api

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// WithAccessToken attaches token to outgoing calls made with ctx, replacing
// any token already there.
func WithAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// AccessTokenInterceptor adds token to every call of a connection.
func AccessTokenInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(WithAccessToken(ctx, token), method, req, reply, cc, opts...)
	}
}

// Client calls TripService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePlan(ctx context.Context, in *CreatePlanRequest, opts ...grpc.CallOption) (*CreatePlanResponse, error) {
	return invoke[CreatePlanResponse](ctx, c, "CreatePlan", in, opts)
}

func (c *Client) AppendMessage(ctx context.Context, in *AppendMessageRequest, opts ...grpc.CallOption) (*AppendMessageResponse, error) {
	return invoke[AppendMessageResponse](ctx, c, "AppendMessage", in, opts)
}

func (c *Client) RequestChangeProposal(ctx context.Context, in *RequestChangeProposalRequest, opts ...grpc.CallOption) (*RequestChangeProposalResponse, error) {
	return invoke[RequestChangeProposalResponse](ctx, c, "RequestChangeProposal", in, opts)
}

func (c *Client) ApproveChange(ctx context.Context, in *ApproveChangeRequest, opts ...grpc.CallOption) (*ApproveChangeResponse, error) {
	return invoke[ApproveChangeResponse](ctx, c, "ApproveChange", in, opts)
}

func (c *Client) RejectChange(ctx context.Context, in *ApproveChangeRequest, opts ...grpc.CallOption) (*ApproveChangeResponse, error) {
	return invoke[ApproveChangeResponse](ctx, c, "RejectChange", in, opts)
}

func (c *Client) DeleteToTrash(ctx context.Context, in *DeleteToTrashRequest, opts ...grpc.CallOption) (*DeleteToTrashResponse, error) {
	return invoke[DeleteToTrashResponse](ctx, c, "DeleteToTrash", in, opts)
}

func (c *Client) RestoreFromTrash(ctx context.Context, in *RestoreFromTrashRequest, opts ...grpc.CallOption) (*RestoreFromTrashResponse, error) {
	return invoke[RestoreFromTrashResponse](ctx, c, "RestoreFromTrash", in, opts)
}

func (c *Client) EnqueueJournalJob(ctx context.Context, in *EnqueueJournalJobRequest, opts ...grpc.CallOption) (*EnqueueJournalJobResponse, error) {
	return invoke[EnqueueJournalJobResponse](ctx, c, "EnqueueJournalJob", in, opts)
}

func (c *Client) RunJournalJob(ctx context.Context, in *RunJournalJobRequest, opts ...grpc.CallOption) (*RunJournalJobResponse, error) {
	return invoke[RunJournalJobResponse](ctx, c, "RunJournalJob", in, opts)
}

func (c *Client) UpdateJournalSettings(ctx context.Context, in *UpdateJournalSettingsRequest, opts ...grpc.CallOption) (*UpdateJournalSettingsResponse, error) {
	return invoke[UpdateJournalSettingsResponse](ctx, c, "UpdateJournalSettings", in, opts)
}
