package engine

import "errors"

// Sentinel errors for the error-kind table in §7.
var (
	ErrDecoderNotFound   = errors.New("engine: external decoder not found")
	ErrDecoderStartFailed = errors.New("engine: decoder failed to start")
	ErrDecoderIO         = errors.New("engine: decoder pipe read/write failed")
	ErrDecoderNotRunning = errors.New("engine: decoder is not running")
	ErrModelLoadFailure  = errors.New("engine: capability provider failed to load")
	ErrSessionClosed     = errors.New("engine: session is closed")
)

// DecoderFailureReason is the typed reason passed to a Decoder's error
// callback on start failure (§4.1).
type DecoderFailureReason string

const (
	ReasonDecoderNotFound DecoderFailureReason = "decoder_not_found"
	ReasonStartFailed     DecoderFailureReason = "start_failed"
)
