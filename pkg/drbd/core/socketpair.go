package core

import (
	"context"
	"net"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// SocketPair is the established data+meta sockets for one connection,
// ready for header/payload framing (spec.md 4.2).
type SocketPair struct {
	Data net.Conn
	Meta net.Conn
}

// Dialer opens an outbound TCP connection; tests substitute a fake.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// EstablishOutbound implements the initiating side of spec.md 4.2:
// dial twice, mark INITIAL_DATA/INITIAL_META, and return the pair. A
// failed dial is a transient condition (caller retries from
// Connecting).
func EstablishOutbound(ctx context.Context, dial Dialer, address string) (SocketPair, error) {
	data, err := dial(ctx, address)
	if err != nil {
		return SocketPair{}, drbderr.NetworkTransient("dial-data", err)
	}
	if err := WriteRole(data, roleData); err != nil {
		data.Close()
		return SocketPair{}, err
	}

	meta, err := dial(ctx, address)
	if err != nil {
		data.Close()
		return SocketPair{}, drbderr.NetworkTransient("dial-meta", err)
	}
	if err := WriteRole(meta, roleMeta); err != nil {
		data.Close()
		meta.Close()
		return SocketPair{}, err
	}

	return SocketPair{Data: data, Meta: meta}, nil
}

// AwaitInbound implements the accepting side of spec.md 4.2: register a
// waiter on the shared listener for peerAddr, then block until both the
// data and meta sockets have arrived or the timeout/context expires.
func AwaitInbound(ctx context.Context, l *Listener, peerAddr string, timeout time.Duration) (SocketPair, error) {
	w := l.RegisterWaiter(peerAddr)
	defer l.UnregisterWaiter(peerAddr)

	var pair SocketPair
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for pair.Data == nil || pair.Meta == nil {
		select {
		case pair.Data = <-w.DataReady:
		case pair.Meta = <-w.MetaReady:
		case <-timer.C:
			closePartial(pair)
			return SocketPair{}, drbderr.NetworkTransient("await-inbound", context.DeadlineExceeded)
		case <-ctx.Done():
			closePartial(pair)
			return SocketPair{}, ctx.Err()
		}
	}
	return pair, nil
}

func closePartial(pair SocketPair) {
	if pair.Data != nil {
		pair.Data.Close()
	}
	if pair.Meta != nil {
		pair.Meta.Close()
	}
}

// TieBreak implements spec.md 4.2's simultaneous-connect resolution:
// when both sides dialed each other at once, the side with the larger
// node ID keeps its outbound attempt and the other discards its
// outbound pair in favor of the inbound one.
func TieBreak(myID, peerID types.NodeID) (keepOutbound bool) {
	return myID > peerID
}

// ClassifyDialFailure implements spec.md 4.2's transient-vs-fatal
// connect failure policy: timeouts, refusals, and unreachable-host
// errors stay in Connecting and retry; anything else is treated as
// fatal and moves the connection to Disconnecting.
func ClassifyDialFailure(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return drbderr.NetworkTransient("connect", err)
	}
	switch {
	case isConnRefused(err), isUnreachable(err), isInterrupted(err):
		return drbderr.NetworkTransient("connect", err)
	default:
		return drbderr.NetworkFatal("connect", err)
	}
}

func isConnRefused(err error) bool {
	return containsAny(err, "connection refused")
}

func isUnreachable(err error) bool {
	return containsAny(err, "no route to host", "network is unreachable", "host is down")
}

func isInterrupted(err error) bool {
	return containsAny(err, "interrupted system call", "use of closed network connection")
}

func containsAny(err error, substrs ...string) bool {
	msg := err.Error()
	for _, s := range substrs {
		if indexOf(msg, s) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
