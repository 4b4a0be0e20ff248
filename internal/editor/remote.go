// Package editor binds the weaver to bytecode editors.
//
// A ClassSerializer turns a woven target into class-file bytes. Remote sends
// the target to an editor process over gRPC; DryRun hands back the original
// bytes so a run only reports what it would weave. RegisterEditorServer hosts
// a Go Backend behind the same RPC: Relay forwards to an upstream editor,
// Verifier checks requests and echoes the class.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/weaver/internal/core/auth"
	"github.com/solatis/weaver/internal/types"
	"github.com/solatis/weaver/internal/weave"
)

// Remote is a ClassSerializer backed by an editor service.
type Remote struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *slog.Logger
}

// Dial connects to the editor at address. Calls are signed when signer is
// non-nil. Extra options are appended to the defaults.
func Dial(address string, timeout time.Duration, signer *auth.Signer, logger *slog.Logger, opts ...grpc.DialOption) (*Remote, error) {
	if address == "" {
		return nil, fmt.Errorf("editor address cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if signer != nil {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(signer))
	}
	conn, err := grpc.NewClient(address, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create editor client for %s: %w", address, err)
	}
	return &Remote{conn: conn, timeout: timeout, logger: logger}, nil
}

// Serialize sends the target's class and edits to the editor and returns
// the edited class.
func (r *Remote) Serialize(ctx context.Context, t *weave.Target) ([]byte, error) {
	req, err := EncodeRequest(t)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, t.Name(), len(t.Edits()), req)
}

func (r *Remote) apply(ctx context.Context, class string, edits int, req *structpb.Struct) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, ApplyMethod, req, resp); err != nil {
		return nil, mapError(class, err)
	}
	out, err := DecodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("editor reply for %s: %w", class, err)
	}
	r.logger.Debug("editor applied edits",
		slog.String("class", class),
		slog.Int("edits", edits),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

// Close releases the connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

// Backend edits classes on the server side of the editor service.
type Backend interface {
	Apply(ctx context.Context, req Request) ([]byte, error)
}

// EditorServer is the service interface behind ServiceName.
type EditorServer interface {
	Apply(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var editorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EditorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Apply", Handler: applyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "weaver/editor/v1/editor.proto",
}

func applyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EditorServer).Apply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ApplyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EditorServer).Apply(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterEditorServer hosts backend on s.
func RegisterEditorServer(s grpc.ServiceRegistrar, backend Backend, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.RegisterService(&editorServiceDesc, &backendServer{backend: backend, logger: logger})
}

type backendServer struct {
	backend Backend
	logger  *slog.Logger
}

func (s *backendServer) Apply(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := DecodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out, err := s.backend.Apply(ctx, req)
	if err != nil {
		s.logger.Warn("backend failed", slog.String("class", req.ClassName), slog.String("error", err.Error()))
		return nil, statusFor(err)
	}
	return EncodeResponse(out), nil
}

// statusFor maps backend errors: validation errors to INVALID_ARGUMENT,
// context timeouts to DEADLINE_EXCEEDED, everything else to INTERNAL.
func statusFor(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, types.ErrUnknownAction), errors.Is(err, types.ErrMalformedClass),
		errors.Is(err, types.ErrNotClassFile), errors.Is(err, ErrMissingField),
		errors.Is(err, ErrClassMismatch), errors.Is(err, ErrUnknownMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
