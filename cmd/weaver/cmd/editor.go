package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/weaver/internal/core/auth"
	"github.com/solatis/weaver/internal/core/config"
	"github.com/solatis/weaver/internal/core/server"
	"github.com/solatis/weaver/internal/editor"
)

var editorCmd = &cobra.Command{
	Use:   "editor",
	Short: "Bytecode editor service commands",
}

var editorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the editor service",
	Long: `serve accepts signed Apply calls on --listen. With --upstream every call is
relayed to that editor; without it the request is verified against the class
it carries and the class is returned unchanged.

Secrets are read from WEAVER_EDITOR_SECRET and WEAVER_EDITOR_SECRET_N.`,
	RunE: runEditorServe,
}

var serveFlagKeys = map[string]string{
	"editor.listen":   "listen",
	"editor.upstream": "upstream",
	"editor.timeout":  "editor-timeout",
}

func init() {
	rootCmd.AddCommand(editorCmd)
	editorCmd.AddCommand(editorServeCmd)

	f := editorServeCmd.Flags()
	f.String("listen", "127.0.0.1:7070", "address to accept editor calls on")
	f.String("upstream", "", "editor to relay calls to")
	f.Duration("editor-timeout", 0, "timeout of each relayed call")
}

func runEditorServe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, serveFlagKeys)
	if err != nil {
		return err
	}
	if err := config.ValidateServe(cfg); err != nil {
		return err
	}

	srv, cleanup, err := newEditorServer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	listener, err := net.Listen("tcp", cfg.Editor.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Editor.Listen, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down editor server")
		return srv.Shutdown(context.Background())
	}
}

// newEditorServer builds the authenticated server and its backend. The
// returned func releases the upstream connection.
func newEditorServer(cfg *config.Config) (*server.EditorServer, func(), error) {
	secrets, err := config.EditorSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load editor secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil, fmt.Errorf("no editor secrets configured (set WEAVER_EDITOR_SECRET environment variable)")
	}

	var backend editor.Backend
	cleanup := func() {}
	if cfg.Editor.Upstream != "" {
		secretID, secret, err := config.SigningSecret()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load editor secret: %w", err)
		}
		upstream, err := editor.Dial(cfg.Editor.Upstream, cfg.Editor.Timeout, auth.NewSigner(secretID, secret), logger)
		if err != nil {
			return nil, nil, err
		}
		backend = editor.NewRelay(upstream)
		cleanup = func() { upstream.Close() }
		logger.Info("relaying editor calls", slog.String("upstream", cfg.Editor.Upstream))
	} else {
		backend = editor.NewVerifier(logger)
	}

	srv, err := server.NewEditorServer(backend, auth.NewAuthenticator(secrets), logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}
