package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type invokeFunc func(ctx context.Context, method string, in, out *structpb.Struct) error

type GRPCClient struct {
	endpointURL string
	clientID    string
	token       TokenSource
	conn        *grpc.ClientConn
	invoke      invokeFunc
}

func withAccessToken(ctx context.Context, token, clientID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if clientID != "" {
		md.Set(common.ClientIDHeaderName, clientID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, err := s.token(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	ctx = withAccessToken(ctx, token, s.clientID)
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a lazily connecting client for endpointURL.
func NewGRPCClient(endpointURL, clientID string, ts TokenSource, opts ...grpc.DialOption) (*GRPCClient, error) {
	if ts == nil {
		ts = NoToken
	}
	c := &GRPCClient{endpointURL: endpointURL, clientID: clientID, token: ts}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.invoke = func(ctx context.Context, method string, in, out *structpb.Struct) error {
		return conn.Invoke(ctx, api.FullMethod(method), in, out)
	}
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, in, out any) error {
	req, err := api.ToStruct(in)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := s.invoke(ctx, method, req, resp); err != nil {
		return s.mapError(err)
	}
	return api.FromStruct(resp, out)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	var resp api.PingResponse
	if err := s.call(ctx, api.MethodPing, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username, password string) error {
	return s.call(ctx, api.MethodRegister, api.Credentials{Username: username, Password: password}, nil)
}

func (s *GRPCClient) Login(ctx context.Context, username, password string) (*api.Token, error) {
	var tok api.Token
	if err := s.call(ctx, api.MethodLogin, api.Credentials{Username: username, Password: password}, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *GRPCClient) Create(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	var out api.RecordEnvelope
	if err := s.call(ctx, api.MethodCreate, api.MutationRequest{Entity: e, Record: rec}, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (s *GRPCClient) Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	var out api.RecordEnvelope
	if err := s.call(ctx, api.MethodUpdate, api.MutationRequest{Entity: e, ID: id, Record: patch}, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (s *GRPCClient) Delete(ctx context.Context, e api.Entity, id int64) error {
	return s.call(ctx, api.MethodDelete, api.MutationRequest{Entity: e, ID: id}, nil)
}

func (s *GRPCClient) Snapshot(ctx context.Context) (*api.Snapshot, error) {
	var snap api.Snapshot
	if err := s.call(ctx, api.MethodSnapshot, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *GRPCClient) Incremental(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error) {
	var resp api.IncrementalResponse
	if err := s.call(ctx, api.MethodIncremental, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) Status(ctx context.Context) (*api.Status, error) {
	var st api.Status
	if err := s.call(ctx, api.MethodStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *GRPCClient) PaperPDFURL(ctx context.Context, paperID int64) (string, error) {
	var link api.PDFLink
	if err := s.call(ctx, api.MethodPaperPDF, api.MutationRequest{Entity: api.Papers, ID: paperID}, &link); err != nil {
		return "", err
	}
	return link.URL, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return transportError(context.Background(), err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.AlreadyExists, codes.Aborted:
		return fmt.Errorf("%w: %s", ErrConflict, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
