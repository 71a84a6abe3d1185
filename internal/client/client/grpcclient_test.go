package client

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

/*************
 * Fake invoker
 *************/

type fakeInvoker struct {
	method string
	in     *structpb.Struct
	out    any
	err    error
}

func (f *fakeInvoker) invoke(ctx context.Context, method string, in, out *structpb.Struct) error {
	f.method = method
	f.in = in
	if f.err != nil {
		return f.err
	}
	st, err := api.ToStruct(f.out)
	if err != nil {
		return err
	}
	out.Fields = st.Fields
	return nil
}

func newFakeGRPC(f *fakeInvoker) *GRPCClient {
	return &GRPCClient{token: NoToken, invoke: f.invoke}
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_AttachesTokenAndClientID(t *testing.T) {
	c := &GRPCClient{
		clientID: "c-9",
		token:    func(context.Context) (string, error) { return "A1", nil },
	}

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Equal(t, []string{"A1"}, md.Get(common.AccessTokenHeaderName))
		require.Equal(t, []string{"c-9"}, md.Get(common.ClientIDHeaderName))
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 1, callCount)
}

func TestInterceptor_ReplacesStaleToken(t *testing.T) {
	c := &GRPCClient{token: func(context.Context) (string, error) { return "NEW", nil }}
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "OLD")

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Equal(t, []string{"NEW"}, md.Get(common.AccessTokenHeaderName))
		return nil
	}
	require.NoError(t, c.accessTokenInterceptor(ctx, "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_NoTokenNoHeader(t *testing.T) {
	c := &GRPCClient{token: NoToken}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return nil
	}
	require.NoError(t, c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_TokenSourceError(t *testing.T) {
	c := &GRPCClient{token: func(context.Context) (string, error) { return "", errors.New("locked") }}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		t.Fatal("invoker must not be called")
		return nil
	}
	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.ErrorContains(t, err, "locked")
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	require.ErrorIs(t, c.mapError(status.Error(codes.Unauthenticated, "x")), ErrUnauthorized)
	require.ErrorIs(t, c.mapError(status.Error(codes.PermissionDenied, "x")), ErrUnauthorized)
	require.ErrorIs(t, c.mapError(status.Error(codes.Unavailable, "x")), ErrUnavailable)
	require.ErrorIs(t, c.mapError(status.Error(codes.DeadlineExceeded, "x")), ErrTimeout)
	require.ErrorIs(t, c.mapError(status.Error(codes.NotFound, "x")), ErrNotFound)
	require.ErrorIs(t, c.mapError(status.Error(codes.AlreadyExists, "x")), ErrConflict)
	require.ErrorIs(t, c.mapError(status.Error(codes.Aborted, "x")), ErrConflict)
	require.ErrorIs(t, c.mapError(status.Error(codes.Canceled, "x")), context.Canceled)
	require.ErrorContains(t, c.mapError(status.Error(codes.Internal, "boom")), "rpc error:")
	require.ErrorIs(t, c.mapError(errors.New("plain")), ErrUnavailable)
	require.NoError(t, c.mapError(nil))
}

/*************
 * Call tests
 *************/

func TestGRPCPing(t *testing.T) {
	f := &fakeInvoker{out: api.PingResponse{Status: "OK"}}
	require.NoError(t, newFakeGRPC(f).Ping(context.Background()))
	assert.Equal(t, api.MethodPing, f.method)

	f = &fakeInvoker{out: api.PingResponse{Status: "NOT_OK"}}
	require.ErrorIs(t, newFakeGRPC(f).Ping(context.Background()), ErrUnavailable)

	f = &fakeInvoker{err: status.Error(codes.Unavailable, "down")}
	require.ErrorIs(t, newFakeGRPC(f).Ping(context.Background()), ErrUnavailable)
}

func TestGRPCUpdate_SendsMutation(t *testing.T) {
	f := &fakeInvoker{out: api.RecordEnvelope{Record: api.Record{"id": 3, "name": "n"}}}
	rec, err := newFakeGRPC(f).Update(context.Background(), api.Collections, 3, api.Record{"name": "n"})
	require.NoError(t, err)
	assert.Equal(t, "n", rec["name"])
	assert.Equal(t, api.MethodUpdate, f.method)

	var sent api.MutationRequest
	require.NoError(t, api.FromStruct(f.in, &sent))
	assert.Equal(t, api.Collections, sent.Entity)
	assert.EqualValues(t, 3, sent.ID)
	assert.Equal(t, "n", sent.Record["name"])
}

func TestGRPCIncremental(t *testing.T) {
	out := api.IncrementalResponse{}
	out.AppliedChanges.Annotations.Deleted = []int64{4}
	f := &fakeInvoker{out: out}

	req := &api.IncrementalRequest{ClientID: "c", Changes: *api.NewChangeSet()}
	req.Changes.Annotations.Deleted = []int64{4}

	resp, err := newFakeGRPC(f).Incremental(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, resp.AppliedChanges.Annotations.Deleted)
	assert.Equal(t, api.MethodIncremental, f.method)
}

func TestGRPCSnapshot_MapsUnauthenticated(t *testing.T) {
	f := &fakeInvoker{err: status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())}
	_, err := newFakeGRPC(f).Snapshot(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGRPCLogin(t *testing.T) {
	f := &fakeInvoker{out: api.Token{AccessToken: "tok"}}
	tok, err := newFakeGRPC(f).Login(context.Background(), "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)

	var sent api.Credentials
	require.NoError(t, api.FromStruct(f.in, &sent))
	assert.Equal(t, api.Credentials{Username: "u", Password: "p"}, sent)
}

func TestGRPCClose_NilConn(t *testing.T) {
	require.NoError(t, (&GRPCClient{}).Close())
}
