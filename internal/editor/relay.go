package editor

import (
	"context"
)

// Relay is a Backend that forwards every request to an upstream editor.
// Upstream status codes are passed through to the caller.
type Relay struct {
	upstream *Remote
}

// NewRelay forwards to upstream. The relay does not own the connection.
func NewRelay(upstream *Remote) *Relay {
	return &Relay{upstream: upstream}
}

func (r *Relay) Apply(ctx context.Context, req Request) ([]byte, error) {
	msg, err := req.Encode()
	if err != nil {
		return nil, err
	}
	return r.upstream.apply(ctx, req.ClassName, len(req.Edits), msg)
}
