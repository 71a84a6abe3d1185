package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps service errors to gRPC status codes. Unexpected errors are
// logged and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func decode(in *structpb.Struct, out any) error {
	if err := api.FromStruct(in, out); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	st, err := api.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func decodeMutation(in *structpb.Struct) (*api.MutationRequest, error) {
	var req api.MutationRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if _, err := api.ParseEntity(string(req.Entity)); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &req, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(api.PingResponse{Status: "OK"})
}

func (s *GRPCServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var creds api.Credentials
	if err := decode(in, &creds); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Registration request", "username", creds.Username)

	user, err := s.users.Register(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodRegister, err)
	}

	s.logger.Info(ctx, "Registered", "username", user.UserName)
	return encode(nil)
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var creds api.Credentials
	if err := decode(in, &creds); err != nil {
		return nil, err
	}

	token, err := s.users.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodLogin, err)
	}
	return encode(token)
}

func (s *GRPCServer) Snapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.sync.Snapshot(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodSnapshot, err)
	}
	return encode(snap)
}

func (s *GRPCServer) Incremental(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req api.IncrementalRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.ClientID == "" {
		req.ClientID = clientIDFrom(ctx)
	}

	resp, err := s.sync.Incremental(ctx, userID, &req)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodIncremental, err)
	}
	return encode(resp)
}

func (s *GRPCServer) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.sync.Status(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodStatus, err)
	}
	return encode(st)
}

func (s *GRPCServer) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := decodeMutation(in)
	if err != nil {
		return nil, err
	}

	rec, err := s.sync.Create(ctx, userID, clientIDFrom(ctx), req.Entity, req.Record)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodCreate, err)
	}
	return encode(api.RecordEnvelope{Record: rec})
}

func (s *GRPCServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := decodeMutation(in)
	if err != nil {
		return nil, err
	}

	rec, err := s.sync.Update(ctx, userID, clientIDFrom(ctx), req.Entity, req.ID, req.Record)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodUpdate, err)
	}
	return encode(api.RecordEnvelope{Record: rec})
}

func (s *GRPCServer) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := decodeMutation(in)
	if err != nil {
		return nil, err
	}

	if err := s.sync.Delete(ctx, userID, clientIDFrom(ctx), req.Entity, req.ID); err != nil {
		return nil, s.toStatus(ctx, api.MethodDelete, err)
	}
	return encode(nil)
}

func (s *GRPCServer) PaperPDF(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req api.MutationRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	url, err := s.sync.PaperPDFURL(ctx, userID, req.ID)
	if err != nil {
		return nil, s.toStatus(ctx, api.MethodPaperPDF, err)
	}
	return encode(api.PDFLink{URL: url})
}
