package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Device error taxonomy. Retryability is a property of the class, not of
// the vendor that produced it.
var (
	// Network-level failure. Retryable.
	ErrUnreachable = errors.New("device unreachable")
	// Device password missing or wrong. Fatal until reconfigured.
	ErrAuthRequired = errors.New("device authentication required")
	// Transient device-side contention. Retryable with backoff.
	ErrDeviceBusy = errors.New("device busy")
	// Capability not offered by this protocol family. Fatal.
	ErrUnsupported = errors.New("operation not supported by protocol")
	// The family needs a local relay and none is configured. Telling the
	// operator to deploy a bridge beats letting them retry a timeout.
	ErrBridgeRequired = errors.New("device requires a local bridge relay")
)

// Retryable reports whether an error class is worth retrying without a
// configuration change.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrDeviceBusy)
}

// ClassifyDialError maps raw network errors onto the taxonomy.
func ClassifyDialError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}
