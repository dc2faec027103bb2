package relay

import (
	"errors"
	"fmt"
)

// errors
var (
	// ErrFatalConfig marks failures that retrying cannot fix.
	ErrFatalConfig = errors.New("fatal configuration error")
	// ErrNoTargets is returned when no target channel could be resolved.
	ErrNoTargets = fmt.Errorf("%w: no valid target channels", ErrFatalConfig)
	// ErrResolve wraps a single channel resolution failure.
	ErrResolve = errors.New("resolve channel")
	// ErrRelay wraps a failed send to one target.
	ErrRelay = errors.New("relay to target")
	// ErrDisconnected is returned when a session ends without an error.
	ErrDisconnected = errors.New("disconnected")
	// ErrNothingToSend is returned for posts without text or usable media.
	ErrNothingToSend = errors.New("nothing to send")
)
