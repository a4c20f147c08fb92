// Package eventloop provides a single-threaded readiness event loop.
//
// A Loop multiplexes two kinds of events:
//
//   - file events: callbacks bound to a (descriptor, mask) pair, invoked when
//     the Poller reports the descriptor ready for that mask
//   - timers: one-shot callbacks invoked once their deadline has passed
//
// Each iteration waits on the Poller, dispatches every ready file event and
// then fires the timers that are due. Callbacks run to completion on the
// loop goroutine and may freely register or cancel events, including their
// own. None of the Loop methods are safe to call from other goroutines.
//
// Usage:
//
//	l, err := eventloop.New(eventloop.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//
//	l.CreateTimer(time.Second, tick, nil, nil)
//	return l.Run()
package eventloop
