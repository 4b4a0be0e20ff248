// Package auth signs and verifies bytecode editor RPCs with HMAC-SHA256.
package auth

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// SignatureHeader is the metadata key carrying the request signature.
const SignatureHeader = "x-weaver-signature"

// DefaultMaxSkew bounds the age of an accepted signature.
const DefaultMaxSkew = 5 * time.Minute

// Signer attaches a signature to every outgoing RPC. It implements
// credentials.PerRPCCredentials.
type Signer struct {
	secretID string
	secret   []byte
	now      func() time.Time
}

// NewSigner creates a signer for one secret.
func NewSigner(secretID string, secret []byte) *Signer {
	return &Signer{secretID: secretID, secret: secret, now: time.Now}
}

// Sign returns the signature for method at time t.
func (s *Signer) Sign(method string, t time.Time) string {
	ts := t.Unix()
	return FormatSignature(s.secretID, ts, ComputeHMAC(s.secret, method, ts))
}

// GetRequestMetadata signs the method of the RPC being issued.
func (s *Signer) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	ri, ok := credentials.RequestInfoFromContext(ctx)
	if !ok {
		return nil, errors.New("no request info in context")
	}
	return map[string]string{SignatureHeader: s.Sign(ri.Method, s.now())}, nil
}

// RequireTransportSecurity is false: editors usually listen on loopback.
func (s *Signer) RequireTransportSecurity() bool {
	return false
}

// Authenticator verifies signatures against a set of secrets.
// Holds in-memory secret map for O(1) lookup; several secrets stay valid
// during rotation.
type Authenticator struct {
	secrets map[string][]byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewAuthenticator creates an authenticator over secret_id -> secret.
func NewAuthenticator(secrets map[string][]byte) *Authenticator {
	return &Authenticator{secrets: secrets, maxSkew: DefaultMaxSkew, now: time.Now}
}

// Authenticate validates the signature of a call to method and returns the
// secret ID it was made with.
func (a *Authenticator) Authenticate(method, sig string) (string, error) {
	secretID, ts, mac, err := ParseSignature(sig)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownSecret
	}

	if !VerifyHMAC(mac, ComputeHMAC(secret, method, ts)) {
		return "", ErrInvalidSignature
	}

	skew := a.now().Sub(time.Unix(ts, 0))
	if skew < -a.maxSkew || skew > a.maxSkew {
		return "", ErrStaleSignature
	}
	return secretID, nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		sigs := md.Get(SignatureHeader)
		if len(sigs) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingSignature.Error())
		}

		if _, err := a.Authenticate(info.FullMethod, sigs[0]); err != nil {
			if errors.Is(err, ErrStaleSignature) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}
