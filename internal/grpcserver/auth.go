package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationHeader = "authorization"
	bearerPrefix        = "bearer "
)

var (
	// ErrInvalidAuthConfig reports a missing signing key or issuer.
	ErrInvalidAuthConfig = errors.New("invalid auth config")
	// ErrInvalidTokenRequest reports a token request that cannot be signed.
	ErrInvalidTokenRequest = errors.New("invalid token request")
)

// AuthConfig describes how bearer tokens are verified and who counts as an admin.
type AuthConfig struct {
	SigningKey []byte
	Issuer     string
	AdminIDs   []string
	AdminRole  string
}

// TokenClaims is the JWT payload carried in the authorization metadata. The subject is the
// member id.
type TokenClaims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenRequest describes a bearer token to mint.
type TokenRequest struct {
	MemberID    string
	DisplayName string
	Roles       []string
	IssuedAt    time.Time
	TTL         time.Duration
}

// IssueToken signs an HS256 bearer token accepted by Authenticator.
func IssueToken(signingKey []byte, issuer string, request TokenRequest) (string, error) {
	if len(signingKey) == 0 || strings.TrimSpace(issuer) == "" {
		return "", ErrInvalidAuthConfig
	}
	memberID, err := points.NewMemberID(request.MemberID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTokenRequest, err)
	}
	if request.TTL <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidTokenRequest)
	}
	issuedAt := request.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	claims := &TokenClaims{
		Name:  strings.TrimSpace(request.DisplayName),
		Roles: request.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(request.TTL).UTC()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

type memberRegistrar interface {
	RegisterMember(ctx context.Context, caller points.Caller) (points.Member, error)
}

// Authenticator verifies bearer tokens on PointsService calls and registers the caller.
type Authenticator struct {
	cfg        AuthConfig
	adminIDs   map[string]struct{}
	registrar  memberRegistrar
	registered sync.Map
	logger     *zap.Logger
}

// NewAuthenticator validates cfg and builds an authenticator that registers callers through
// registrar.
func NewAuthenticator(cfg AuthConfig, registrar memberRegistrar, logger *zap.Logger) (*Authenticator, error) {
	if len(cfg.SigningKey) == 0 || strings.TrimSpace(cfg.Issuer) == "" {
		return nil, ErrInvalidAuthConfig
	}
	if registrar == nil {
		return nil, fmt.Errorf("%w: registrar is required", ErrInvalidAuthConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	adminIDs := make(map[string]struct{}, len(cfg.AdminIDs))
	for _, rawID := range cfg.AdminIDs {
		if memberID, err := points.NewMemberID(rawID); err == nil {
			adminIDs[memberID.String()] = struct{}{}
		}
	}
	return &Authenticator{
		cfg:       cfg,
		adminIDs:  adminIDs,
		registrar: registrar,
		logger:    logger.Named("grpc.auth"),
	}, nil
}

// UnaryInterceptor authenticates PointsService methods and leaves other services, such as
// health checks, untouched.
func (authenticator *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	servicePrefix := "/" + ServiceName + "/"
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, servicePrefix) {
			return handler(ctx, request)
		}
		caller, err := authenticator.authenticate(ctx)
		if err != nil {
			authenticator.logger.Debug("rejected call", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, err
		}
		if err := authenticator.ensureRegistered(ctx, caller); err != nil {
			return nil, mapToGRPCError(err)
		}
		return handler(withCaller(ctx, caller), request)
	}
}

func (authenticator *Authenticator) authenticate(ctx context.Context) (points.Caller, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return points.Caller{}, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	raw := strings.TrimSpace(values[0])
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return points.Caller{}, status.Error(codes.Unauthenticated, "malformed authorization header")
	}
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw[len(bearerPrefix):]), claims, func(*jwt.Token) (any, error) {
		return authenticator.cfg.SigningKey, nil
	},
		jwt.WithIssuer(authenticator.cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return points.Caller{}, status.Error(codes.Unauthenticated, "invalid bearer token")
	}
	caller, err := points.NewCaller(claims.Subject, claims.Name, authenticator.isAdmin(claims))
	if err != nil {
		return points.Caller{}, status.Error(codes.Unauthenticated, "token has no usable subject")
	}
	return caller, nil
}

func (authenticator *Authenticator) isAdmin(claims *TokenClaims) bool {
	if memberID, err := points.NewMemberID(claims.Subject); err == nil {
		if _, listed := authenticator.adminIDs[memberID.String()]; listed {
			return true
		}
	}
	role := strings.TrimSpace(authenticator.cfg.AdminRole)
	if role == "" {
		return false
	}
	for _, claimedRole := range claims.Roles {
		if strings.EqualFold(strings.TrimSpace(claimedRole), role) {
			return true
		}
	}
	return false
}

// ensureRegistered upserts the member once per process, and again when the display name changes.
func (authenticator *Authenticator) ensureRegistered(ctx context.Context, caller points.Caller) error {
	if known, ok := authenticator.registered.Load(caller.MemberID.String()); ok && known.(string) == caller.DisplayName {
		return nil
	}
	if _, err := authenticator.registrar.RegisterMember(ctx, caller); err != nil {
		return err
	}
	authenticator.registered.Store(caller.MemberID.String(), caller.DisplayName)
	return nil
}

type callerKey struct{}

func withCaller(ctx context.Context, caller points.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// callerFromContext returns the authenticated caller, or an Unauthenticated status when the
// interceptor did not run.
func callerFromContext(ctx context.Context) (points.Caller, error) {
	caller, ok := ctx.Value(callerKey{}).(points.Caller)
	if !ok {
		return points.Caller{}, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return caller, nil
}
