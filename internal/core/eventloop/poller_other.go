//go:build !unix

package eventloop

import "errors"

// NewPoller reports that no readiness multiplexer exists on this platform.
func NewPoller(maxEvents int) (Poller, error) {
	return nil, errors.New("eventloop: no poller available on this platform")
}
