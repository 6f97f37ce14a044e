package drbd

import (
	"context"
	"net"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/config"
	"github.com/jabolina/go-drbd/pkg/drbd/core"
	"github.com/jabolina/go-drbd/pkg/drbd/definition"
	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// Server owns one resource's replication engine: its device set, its
// connections to every configured peer, and the shared listener those
// connections accept on.
type Server struct {
	Config    *config.Config
	Resource  *core.Resource
	Log       types.Logger
	Metrics   *definition.Metrics
	Listeners *core.ListenerSet
}

// NewServer constructs a Server from a validated Config, wiring a
// logrus-backed Logger and a Prometheus Metrics bundle into the
// resource the way cmd/drbd-recv's main does for a real process.
func NewServer(cfg *config.Config, log types.Logger, metrics *definition.Metrics) (*Server, error) {
	ordering, err := cfg.WriteOrderingMode()
	if err != nil {
		return nil, err
	}
	res := core.NewResource(cfg.ResourceName, ordering, log, metrics)
	res.TwoPrimaries = cfg.TwoPrimaries
	return &Server{
		Config:    cfg,
		Resource:  res,
		Log:       log,
		Metrics:   metrics,
		Listeners: core.NewListenerSet(),
	}, nil
}

// AddDevice registers a device backed by the given collaborators
// (block layer, bitmap, activity log, metadata store), supplied by the
// host process since spec.md 1 declares them external to this core.
func (s *Server) AddDevice(id string, block types.BlockLayer, bitmap types.Bitmap, al types.ActivityLog, md types.MetadataStore) *core.Device {
	dev := core.NewDevice(id, block, bitmap, al, md)
	s.Resource.AddDevice(dev)
	return dev
}

// Run starts the shared listener and, for every configured peer,
// begins the connect-or-accept loop that establishes its socket pair
// and runs its Engine. Blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	listen := func(addr string) (net.Listener, error) { return net.Listen("tcp", addr) }
	l, err := s.Listeners.Acquire(s.Config.ListenAddress, listen)
	if err != nil {
		return err
	}
	defer s.Listeners.Release(l)

	go l.AcceptLoop(core.ReadRole, s.Log)

	errCh := make(chan error, len(s.Config.Peers))
	for _, peer := range s.Config.Peers {
		peer := peer
		go func() {
			errCh <- s.runPeer(ctx, l, peer)
		}()
	}

	for range s.Config.Peers {
		select {
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				s.Log.Errorf("peer connection loop exited: %v", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// runPeer is one peer's reconnect loop (spec.md 4.1): establish a
// socket pair, run the connection to completion (or failure), and, on
// a transient failure, retry from Connecting; a fatal failure or
// context cancellation ends the loop.
func (s *Server) runPeer(ctx context.Context, l *core.Listener, peer config.PeerConfig) error {
	peerID := types.NodeID(peer.NodeID)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn := core.NewConnection(peerID, s.Log)
		conn.PingTimeout = s.Config.PingTimeout
		conn.PingInterval = s.Config.PingInterval
		s.Resource.AddConnection(conn)

		pair, err := s.establish(ctx, l, peer)
		if err != nil {
			conn.MarkNetworkFailure()
			if drbderr.Is(err, drbderr.KindNetworkFatal) {
				return err
			}
			time.Sleep(time.Second)
			continue
		}

		conn.DataSocket = pair.Data
		conn.MetaSocket = pair.Meta
		conn.Cookies = core.NewCookieTable()

		engine := NewEngine(s, conn)
		if err := engine.Run(ctx); err != nil {
			s.Log.Warnf("connection to node %d ended: %v", peer.NodeID, err)
			if drbderr.Is(err, drbderr.KindNetworkFatal) {
				return err
			}
			continue
		}
	}
}

// establish runs spec.md 4.2's connect race: dial out while also
// registering as an accept waiter, and keep whichever pair actually
// completes first.
func (s *Server) establish(ctx context.Context, l *core.Listener, peer config.PeerConfig) (core.SocketPair, error) {
	dial := func(ctx context.Context, address string) (net.Conn, error) {
		d := net.Dialer{}
		return d.DialContext(ctx, "tcp", address)
	}

	type result struct {
		pair core.SocketPair
		err  error
	}
	outboundCh := make(chan result, 1)
	inboundCh := make(chan result, 1)

	go func() {
		pair, err := core.EstablishOutbound(ctx, dial, peer.Address)
		outboundCh <- result{pair, err}
	}()
	go func() {
		pair, err := core.AwaitInbound(ctx, l, peer.Address, s.Config.PingTimeout*5)
		inboundCh <- result{pair, err}
	}()

	select {
	case r := <-outboundCh:
		if r.err == nil {
			return r.pair, nil
		}
		r2 := <-inboundCh
		return r2.pair, r2.err
	case r := <-inboundCh:
		if r.err == nil {
			return r.pair, nil
		}
		r2 := <-outboundCh
		return r2.pair, r2.err
	case <-ctx.Done():
		return core.SocketPair{}, ctx.Err()
	}
}
