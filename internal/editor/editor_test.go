package editor_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/classfile/classfiletest"
	"github.com/solatis/weaver/internal/core/auth"
	"github.com/solatis/weaver/internal/core/server"
	"github.com/solatis/weaver/internal/editor"
	"github.com/solatis/weaver/internal/rules"
	"github.com/solatis/weaver/internal/types"
	"github.com/solatis/weaver/internal/weave"
)

const secretID = "0123456789abcdef0123456789abcdef"

var secret = bytes.Repeat([]byte("s"), 32)

// appendingBackend appends each edit kind to the class bytes and records
// the requests it saw.
type appendingBackend struct {
	mu    sync.Mutex
	reqs  []editor.Request
	err   error
	delay time.Duration
}

func (b *appendingBackend) Apply(ctx context.Context, req editor.Request) ([]byte, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	out := bytes.Clone(req.ClassBytes)
	for _, e := range req.Edits {
		out = append(out, string(e.Kind)...)
	}
	return out, nil
}

func startEditor(t *testing.T, backend editor.Backend, authenticator *auth.Authenticator) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := server.NewEditorServer(backend, authenticator, nil)
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return lis
}

func dialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func dial(t *testing.T, lis *bufconn.Listener, timeout time.Duration, signer *auth.Signer) *editor.Remote {
	t.Helper()
	r, err := editor.Dial("passthrough:///bufnet", timeout, signer, nil, dialer(lis))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func wovenTarget(t *testing.T) *weave.Target {
	t.Helper()
	c, err := classfile.Parse(classfiletest.NewClass("com.app.MyActivity").Extends("android.app.Activity").
		Method(classfiletest.Public, "onResume", "()V").Bytes())
	require.NoError(t, err)
	target := weave.NewTarget(c, "/classes/com/app/MyActivity.class", "/classes")

	body, ok := target.Method("onResume", "()")
	require.True(t, ok)
	entry, ok, err := rules.ParseLine(types.Source{File: "weaver.config", Line: 3}, "android.app.Activity.onResume java.io.IOException 'log($method, $e);'")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, target.Insert(body, entry.Rule))
	return target
}

func TestRemote_Serialize(t *testing.T) {
	backend := &appendingBackend{}
	lis := startEditor(t, backend, auth.NewAuthenticator(map[string][]byte{secretID: secret}))
	r := dial(t, lis, 5*time.Second, auth.NewSigner(secretID, secret))

	target := wovenTarget(t)
	out, err := r.Serialize(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, append(bytes.Clone(target.Class.Raw), "add_catch"...), out)

	require.Len(t, backend.reqs, 1)
	req := backend.reqs[0]
	assert.Equal(t, "com.app.MyActivity", req.ClassName)
	assert.Equal(t, target.Class.Raw, req.ClassBytes)
	require.Len(t, req.Edits, 1)
	e := req.Edits[0]
	assert.Equal(t, weave.EditAddCatch, e.Kind)
	assert.Equal(t, "onResume", e.Method)
	assert.Equal(t, "()V", e.Descriptor)
	assert.Equal(t, `log("onResume", $e);`, e.Code)
	assert.Equal(t, "java.io.IOException", e.ExceptionType)
	assert.Equal(t, weave.ExceptionVar, e.ExceptionVar)
}

func TestRemote_Errors(t *testing.T) {
	authenticator := auth.NewAuthenticator(map[string][]byte{secretID: secret})

	tests := []struct {
		name     string
		backend  *appendingBackend
		signer   *auth.Signer
		timeout  time.Duration
		wantCode codes.Code
		wantErr  error
	}{
		{
			name:     "unsigned",
			backend:  &appendingBackend{},
			wantCode: codes.Unauthenticated,
			wantErr:  editor.ErrEditorUnauthorized,
		},
		{
			name:     "wrong secret",
			backend:  &appendingBackend{},
			signer:   auth.NewSigner(secretID, bytes.Repeat([]byte("x"), 32)),
			wantCode: codes.Unauthenticated,
			wantErr:  editor.ErrEditorUnauthorized,
		},
		{
			name:     "rejected edits",
			backend:  &appendingBackend{err: types.ErrUnknownAction},
			signer:   auth.NewSigner(secretID, secret),
			wantCode: codes.InvalidArgument,
			wantErr:  editor.ErrEditorRejected,
		},
		{
			name:     "backend failure",
			backend:  &appendingBackend{err: errors.New("disk full")},
			signer:   auth.NewSigner(secretID, secret),
			wantCode: codes.Internal,
			wantErr:  editor.ErrEditorFailed,
		},
		{
			name:     "timeout",
			backend:  &appendingBackend{delay: time.Second},
			signer:   auth.NewSigner(secretID, secret),
			timeout:  50 * time.Millisecond,
			wantCode: codes.DeadlineExceeded,
			wantErr:  editor.ErrEditorUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lis := startEditor(t, tt.backend, authenticator)
			r := dial(t, lis, tt.timeout, tt.signer)

			_, err := r.Serialize(context.Background(), wovenTarget(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var remote *editor.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.wantCode, remote.Code)
			assert.Equal(t, "com.app.MyActivity", remote.Class)
		})
	}
}

func TestEditorServer_Health(t *testing.T) {
	lis := startEditor(t, &appendingBackend{}, nil)
	conn, err := grpc.NewClient("passthrough:///bufnet", dialer(lis), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: editor.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestRun_ThroughRemoteEditor(t *testing.T) {
	backend := &appendingBackend{}
	lis := startEditor(t, backend, nil)
	r := dial(t, lis, 5*time.Second, nil)

	classes := t.TempDir()
	lib := t.TempDir()
	path, err := classfiletest.NewClass("com.app.MyActivity").Extends("android.app.Activity").WriteTo(classes)
	require.NoError(t, err)
	_, err = classfiletest.NewClass("android.app.Activity").
		Method(classfiletest.Protected, "onCreate", "(Landroid/os/Bundle;)V").WriteTo(lib)
	require.NoError(t, err)

	store := rules.NewBuilder(nil)
	require.NoError(t, store.AddReader("weaver.config", strings.NewReader(`android.app.Activity.onCreate before "log($1);"`)))

	opts := weave.Options{Package: "com.app", ClassDirs: []string{classes}, Classpath: []string{lib}}
	res, err := weave.New(opts, r, nil, weave.WithStore(store.Build())).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written())

	require.Len(t, backend.reqs, 1)
	require.Len(t, backend.reqs[0].Edits, 1)
	assert.Equal(t, "public void onCreate(android.os.Bundle arg1) { log(arg1); super.onCreate(arg1); }", backend.reqs[0].Edits[0].Code)
	canonical, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	assert.Equal(t, canonical, res.Classes[0].Path)
}

func TestVerifier_Apply(t *testing.T) {
	target := wovenTarget(t)
	valid := editor.Request{ClassName: target.Name(), ClassBytes: target.Class.Raw, Edits: target.Edits()}
	added := weave.Edit{Kind: weave.EditAddMethod, Method: "onPause", Descriptor: "()V", Code: "public void onPause() { super.onPause(); }"}

	tests := []struct {
		name    string
		mutate  func(r *editor.Request)
		wantErr error
	}{
		{name: "valid", mutate: func(r *editor.Request) {}},
		{
			name: "edit of an added method",
			mutate: func(r *editor.Request) {
				r.Edits = []weave.Edit{added, {Kind: weave.EditInsertAfter, Method: "onPause", Descriptor: "()V", Code: "x();"}}
			},
		},
		{
			name:    "other class",
			mutate:  func(r *editor.Request) { r.ClassName = "com.app.Other" },
			wantErr: editor.ErrClassMismatch,
		},
		{
			name:    "not a class file",
			mutate:  func(r *editor.Request) { r.ClassBytes = []byte("PK\x03\x04") },
			wantErr: types.ErrNotClassFile,
		},
		{
			name: "unknown kind",
			mutate: func(r *editor.Request) {
				r.Edits = []weave.Edit{{Kind: "rewrite", Method: "onResume", Descriptor: "()V"}}
			},
			wantErr: types.ErrUnknownAction,
		},
		{
			name: "undeclared method",
			mutate: func(r *editor.Request) {
				r.Edits = []weave.Edit{{Kind: weave.EditInsertBefore, Method: "onPause", Descriptor: "()V"}}
			},
			wantErr: editor.ErrUnknownMethod,
		},
	}

	v := editor.NewVerifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			out, err := v.Apply(context.Background(), req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, target.Class.Raw, out)
		})
	}
}

func TestVerifier_RejectionIsInvalidArgument(t *testing.T) {
	lis := startEditor(t, editor.NewVerifier(nil), nil)
	r := dial(t, lis, 5*time.Second, nil)

	target := wovenTarget(t)
	out, err := r.Serialize(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, target.Class.Raw, out)

	conn, err := grpc.NewClient("passthrough:///bufnet", dialer(lis), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	msg, err := editor.Request{
		ClassName:  target.Name(),
		ClassBytes: target.Class.Raw,
		Edits:      []weave.Edit{{Kind: weave.EditInsertBefore, Method: "onPause", Descriptor: "()V", Code: "x();"}},
	}.Encode()
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), editor.ApplyMethod, msg, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRelay_ForwardsToUpstream(t *testing.T) {
	upstreamBackend := &appendingBackend{}
	upstreamLis := startEditor(t, upstreamBackend, auth.NewAuthenticator(map[string][]byte{secretID: secret}))
	upstream := dial(t, upstreamLis, 5*time.Second, auth.NewSigner(secretID, secret))

	relayLis := startEditor(t, editor.NewRelay(upstream), nil)
	r := dial(t, relayLis, 5*time.Second, nil)

	target := wovenTarget(t)
	out, err := r.Serialize(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, append(bytes.Clone(target.Class.Raw), "add_catch"...), out)

	require.Len(t, upstreamBackend.reqs, 1)
	got := upstreamBackend.reqs[0]
	assert.Equal(t, target.Name(), got.ClassName)
	require.Len(t, got.Edits, 1)
	assert.Equal(t, target.Edits()[0].Code, got.Edits[0].Code)
	assert.Equal(t, target.Edits()[0].ExceptionType, got.Edits[0].ExceptionType)
}

func TestRelay_KeepsUpstreamStatus(t *testing.T) {
	upstreamLis := startEditor(t, &appendingBackend{err: types.ErrMalformedClass}, nil)
	upstream := dial(t, upstreamLis, 5*time.Second, nil)

	relayLis := startEditor(t, editor.NewRelay(upstream), nil)
	r := dial(t, relayLis, 5*time.Second, nil)

	_, err := r.Serialize(context.Background(), wovenTarget(t))
	var remoteErr *editor.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, codes.InvalidArgument, remoteErr.Code)
	assert.ErrorIs(t, err, editor.ErrEditorRejected)
}
