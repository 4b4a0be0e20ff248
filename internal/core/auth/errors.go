package auth

import "errors"

// Signature errors map to UNAUTHENTICATED, except a stale signature which
// maps to PERMISSION_DENIED (the key is valid but the request is replayed or
// the clocks disagree).
var (
	ErrMissingSignature       = errors.New("signature required in x-weaver-signature metadata")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
	ErrUnknownSecret          = errors.New("unknown secret ID")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrStaleSignature         = errors.New("signature timestamp outside allowed skew")
)
