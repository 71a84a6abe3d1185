// Package grpc serves the sync API over gRPC. There are no generated stubs:
// every method exchanges a google.protobuf.Struct carrying the JSON form of
// the api types, described by a hand-written service descriptor.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*api.Token, error)
	Authenticate(token string) (string, error)
}

type SyncService interface {
	Snapshot(ctx context.Context, userID string) (*api.Snapshot, error)
	Incremental(ctx context.Context, userID string, req *api.IncrementalRequest) (*api.IncrementalResponse, error)
	Status(ctx context.Context, userID string) (*api.Status, error)
	Create(ctx context.Context, userID, origin string, e api.Entity, rec api.Record) (api.Record, error)
	Update(ctx context.Context, userID, origin string, e api.Entity, id int64, patch api.Record) (api.Record, error)
	Delete(ctx context.Context, userID, origin string, e api.Entity, id int64) error
	PaperPDFURL(ctx context.Context, userID string, paperID int64) (string, error)
}

type GRPCServer struct {
	address string
	users   UserService
	sync    SyncService
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, us UserService, ss SyncService) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		users:   us,
		sync:    ss,
	}
}

// NewServer returns a grpc.Server with the sync service registered and the
// access token interceptor installed.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

// syncServiceServer is the handler type of serviceDesc.
type syncServiceServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Incremental(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PaperPDF(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ syncServiceServer = (*GRPCServer)(nil)

type structMethod func(syncServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(syncServiceServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: api.GRPCServiceName,
	HandlerType: (*syncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodPing, syncServiceServer.Ping),
		unary(api.MethodRegister, syncServiceServer.Register),
		unary(api.MethodLogin, syncServiceServer.Login),
		unary(api.MethodSnapshot, syncServiceServer.Snapshot),
		unary(api.MethodIncremental, syncServiceServer.Incremental),
		unary(api.MethodStatus, syncServiceServer.Status),
		unary(api.MethodCreate, syncServiceServer.Create),
		unary(api.MethodUpdate, syncServiceServer.Update),
		unary(api.MethodDelete, syncServiceServer.Delete),
		unary(api.MethodPaperPDF, syncServiceServer.PaperPDF),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "papershelf/sync/v1/sync.proto",
}
