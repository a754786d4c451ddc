package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
)

var _ AuthServiceServer = (*Server)(nil)

type Server struct {
	log *zap.Logger
	uc  *Usecase
}

func NewServer(uc *Usecase, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, uc: uc}
}

func field(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	if v, ok := s.GetFields()[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

func pairToStruct(p *domainauth.TokenPair) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"access_token":  structpb.NewStringValue(p.AccessToken),
		"refresh_token": structpb.NewStringValue(p.RefreshToken),
	}}
}

func (s *Server) SignUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	u, pair, err := s.uc.SignUp(ctx, field(req, "email"), field(req, "password"), field(req, "full_name"))
	if err != nil {
		return nil, s.mapErr(err)
	}
	out := pairToStruct(pair)
	out.Fields["user_id"] = structpb.NewStringValue(u.ID)
	return out, nil
}

func (s *Server) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.uc.SignIn(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, s.mapErr(err)
	}
	return pairToStruct(pair), nil
}

// Refresh takes the token from the request value, falling back to refresh_token metadata.
func (s *Server) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	raw := req.GetValue()
	if raw == "" {
		raw = refreshFromMD(ctx)
	}
	if raw == "" {
		return nil, status.Error(codes.Unauthenticated, "missing refresh token")
	}
	pair, err := s.uc.Refresh(ctx, raw)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return pairToStruct(pair), nil
}

func (s *Server) Logout(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	raw := req.GetValue()
	if raw == "" {
		raw = refreshFromMD(ctx)
	}
	if err := s.uc.Logout(ctx, raw); err != nil {
		return nil, s.mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Validate(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	uid, ok := UserIDFromCtx(ctx)
	if !ok {
		var err error
		if uid, err = s.uc.Validate(bearer(ctx)); err != nil {
			return nil, s.mapErr(err)
		}
	}
	return wrapperspb.String(uid), nil
}

func (s *Server) mapErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, user.ErrEmailExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domainauth.ErrReused):
		return status.Error(codes.PermissionDenied, domainauth.ErrReused.Error())
	case errors.Is(err, domainauth.ErrInvalid), errors.Is(err, domainauth.ErrExpired),
		errors.Is(err, domainauth.ErrUnknown):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domainauth.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "token store unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		s.log.Error("auth internal error", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
