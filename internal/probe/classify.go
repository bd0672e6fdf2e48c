package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/hamed0406/watchdog/internal/domain"
)

const (
	KindTimeout    = "timeout"
	KindRefused    = "refused"
	KindConnection = "connection"
	KindProtocol   = "protocol"
	KindCanceled   = "canceled"
)

// Classify maps a probe error onto the check error taxonomy. Refusals and
// timeouts keep distinct messages but both end up Unhealthy.
func Classify(err error) (string, error) {
	var netErr net.Error
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, domain.ErrCheckTimeout):
		return KindTimeout, err
	case errors.Is(err, domain.ErrProtocolFailure):
		return KindProtocol, err
	case errors.Is(err, domain.ErrConnectionFailure):
		return KindConnection, err
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout, fmt.Errorf("%w: %v", domain.ErrCheckTimeout, err)
	case errors.Is(err, context.Canceled):
		return KindCanceled, fmt.Errorf("check canceled: %w", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindRefused, fmt.Errorf("%w: connection refused: %v", domain.ErrConnectionFailure, err)
	}
	return KindConnection, fmt.Errorf("%w: %v", domain.ErrConnectionFailure, err)
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrProtocolFailure, fmt.Sprintf(format, args...))
}
