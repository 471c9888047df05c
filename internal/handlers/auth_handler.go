package handlers

import (
	"context"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthServiceName is the gRPC service issuing session tokens
const AuthServiceName = "eddy.v1.Auth"

// SessionProvider resolves bearer tokens and issues new ones
type SessionProvider interface {
	CurrentPrincipal(ctx context.Context, token string) (*entities.Principal, error)
	ObtainToken(ctx context.Context, username, password string) (string, time.Time, error)
}

// AuthServer is implemented by AuthHandler
type AuthServer interface {
	ObtainToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AuthHandler handles Auth service gRPC requests
type AuthHandler struct {
	sessions SessionProvider
}

var _ AuthServer = (*AuthHandler)(nil)

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sessions SessionProvider) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// ObtainToken exchanges {username, password} for {token, expires_at}
func (h *AuthHandler) ObtainToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	username := fields["username"].GetStringValue()
	password := fields["password"].GetStringValue()

	token, expires, err := h.sessions.ObtainToken(ctx, username, password)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

// Register registers the service on a gRPC server
func (h *AuthHandler) Register(server grpc.ServiceRegistrar) {
	server.RegisterService(&authServiceDesc, h)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ObtainToken",
			Handler: structHandler(AuthServiceName, "ObtainToken", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AuthServer).ObtainToken(ctx, req)
			}),
		},
	},
	Metadata: "eddy/v1/auth",
}

// AuthenticateFunc resolves the request principal from an optional bearer token.
// Requests without credentials run as the anonymous principal; the operations decide
// whether that is enough.
func AuthenticateFunc(sessions SessionProvider) func(ctx context.Context) (context.Context, error) {
	return func(ctx context.Context) (context.Context, error) {
		token, err := bearerToken(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return entities.ContextWithPrincipal(ctx, entities.Anonymous()), nil
		}

		principal, err := sessions.CurrentPrincipal(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unavailable, "failed to resolve session")
		}
		return entities.ContextWithPrincipal(ctx, principal), nil
	}
}
