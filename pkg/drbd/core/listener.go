package core

import (
	"fmt"
	"net"
	"sync"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// Listener is a shared socket bound to one local address (spec.md 3):
// at most one per (resource, local address), reference-counted by the
// connections waiting to accept on it.
type Listener struct {
	Address string

	mu       sync.Mutex
	ln       net.Listener
	refCount int
	waiters  map[string]*socketWaiter // keyed by expected peer address
}

// socketWaiter is one pending accept registration, so an incoming
// socket can be matched to the caller expecting it by peer address
// (spec.md 4.2's "waiter structure").
type socketWaiter struct {
	PeerAddress string
	DataReady   chan net.Conn
	MetaReady   chan net.Conn
}

// ListenerSet owns every shared Listener for a resource, keyed by bind
// address (spec.md 3).
type ListenerSet struct {
	mu        sync.Mutex
	listeners map[string]*Listener
}

func NewListenerSet() *ListenerSet {
	return &ListenerSet{listeners: make(map[string]*Listener)}
}

// Acquire returns the shared Listener for address, creating and
// starting it (via listen) if this is the first waiter, and bumping its
// reference count either way.
func (ls *ListenerSet) Acquire(address string, listen func(string) (net.Listener, error)) (*Listener, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if l, ok := ls.listeners[address]; ok {
		l.mu.Lock()
		l.refCount++
		l.mu.Unlock()
		return l, nil
	}
	ln, err := listen(address)
	if err != nil {
		return nil, drbderr.NetworkFatal("listen", err)
	}
	l := &Listener{Address: address, ln: ln, refCount: 1, waiters: make(map[string]*socketWaiter)}
	ls.listeners[address] = l
	return l, nil
}

// Release drops a reference; the last releaser closes the underlying
// socket.
func (ls *ListenerSet) Release(l *Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	l.mu.Lock()
	l.refCount--
	closeIt := l.refCount <= 0
	l.mu.Unlock()
	if closeIt {
		l.ln.Close()
		delete(ls.listeners, l.Address)
	}
}

// RegisterWaiter adds peerAddr to this listener's dispatch table so a
// subsequently accepted socket from it is routed to the returned
// waiter rather than rejected as unknown.
func (l *Listener) RegisterWaiter(peerAddr string) *socketWaiter {
	w := &socketWaiter{
		PeerAddress: peerAddr,
		DataReady:   make(chan net.Conn, 1),
		MetaReady:   make(chan net.Conn, 1),
	}
	l.mu.Lock()
	l.waiters[peerAddr] = w
	l.mu.Unlock()
	return w
}

func (l *Listener) UnregisterWaiter(peerAddr string) {
	l.mu.Lock()
	delete(l.waiters, peerAddr)
	l.mu.Unlock()
}

// AcceptLoop runs the listener's accept dispatch (spec.md 4.2): the
// peer address is read off each accepted socket and matched against the
// registered waiters; unknown peers are rejected, and a peer address
// already holding both sockets rejects the new one as a duplicate.
func (l *Listener) AcceptLoop(readRole func(net.Conn) (socketRole, error), log types.Logger) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go l.dispatchAccepted(conn, readRole, log)
	}
}

func (l *Listener) dispatchAccepted(conn net.Conn, readRole func(net.Conn) (socketRole, error), log types.Logger) {
	peerAddr := conn.RemoteAddr().String()
	l.mu.Lock()
	w, ok := l.waiters[peerAddr]
	l.mu.Unlock()
	if !ok {
		if log != nil {
			log.Warnf("rejecting socket from unknown peer %s", peerAddr)
		}
		conn.Close()
		return
	}

	role, err := readRole(conn)
	if err != nil {
		if log != nil {
			log.Warnf("rejecting socket from %s: %v", peerAddr, err)
		}
		conn.Close()
		return
	}

	var target chan net.Conn
	switch role {
	case roleData:
		target = w.DataReady
	case roleMeta:
		target = w.MetaReady
	default:
		conn.Close()
		return
	}

	select {
	case target <- conn:
	default:
		// Duplicate role already bound for this peer address: reject the
		// new socket rather than overwrite a live one.
		conn.Close()
	}
}

// socketRole is the disambiguating first byte each socket sends
// (spec.md 4.2).
type socketRole int

const (
	roleData socketRole = iota
	roleMeta
)

const (
	initialDataByte byte = 0x01
	initialMetaByte byte = 0x02
)

// ReadRole reads the one-byte role marker off a freshly accepted
// socket.
func ReadRole(conn net.Conn) (socketRole, error) {
	var b [1]byte
	if _, err := conn.Read(b[:]); err != nil {
		return 0, drbderr.NetworkTransient("read-role", err)
	}
	switch b[0] {
	case initialDataByte:
		return roleData, nil
	case initialMetaByte:
		return roleMeta, nil
	default:
		return 0, drbderr.NetworkFatal("read-role", fmt.Errorf("unrecognized initial byte %#x", b[0]))
	}
}

// WriteRole writes the INITIAL_DATA/INITIAL_META marker on an outbound
// socket this side opened.
func WriteRole(conn net.Conn, role socketRole) error {
	b := initialDataByte
	if role == roleMeta {
		b = initialMetaByte
	}
	if _, err := conn.Write([]byte{b}); err != nil {
		return drbderr.NetworkTransient("write-role", err)
	}
	return nil
}
