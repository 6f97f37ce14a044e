package drbd

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/jabolina/go-drbd/pkg/drbd/core"
	"github.com/jabolina/go-drbd/pkg/drbd/definition"
	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
	"golang.org/x/sync/errgroup"
)

// Engine runs one established connection (spec.md 4.1, 4.3-4.12): the
// version handshake, then the data-socket receive loop and meta-socket
// ack-reader loop concurrently until either fails or ctx is canceled.
type Engine struct {
	Server *Server
	Conn   *core.Connection

	variant wire.HeaderVariant
}

func NewEngine(s *Server, conn *core.Connection) *Engine {
	return &Engine{Server: s, Conn: conn}
}

// Run drives the connection's full lifecycle: handshake, then the two
// concurrent receive loops plus the ping scheduler, torn down together
// on first failure (golang.org/x/sync/errgroup, same dependency and
// fan-in/fan-out shape the teacher's protocol.go dispatch loop uses).
func (e *Engine) Run(ctx context.Context) error {
	e.Conn.MarkConnecting()
	if err := e.handshakeProtocol(); err != nil {
		return err
	}
	e.Conn.MarkHandshake()

	if e.Server.Config.AuthAlgorithm != "" {
		if err := e.authenticate(); err != nil {
			return err
		}
	}

	e.variant = wire.VariantForVersion(e.Conn.ProtocolVersion)
	e.Conn.MarkConnected()

	group, gctx := errgroup.WithContext(ctx)
	ackReader := core.NewAckReader(e.Conn, e.Server.Resource)

	group.Go(func() error { return e.runDataLoop(gctx, ackReader) })
	group.Go(func() error { return e.runAckLoop(gctx, ackReader) })
	group.Go(func() error {
		return ackReader.RunPingScheduler(gctx, func() error {
			return WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{Command: wire.PPing})
		})
	})

	err := group.Wait()
	e.Conn.MarkDisconnecting()
	return err
}

// handshakeProtocol implements the minimal version exchange spec.md
// 4.1 requires before any other traffic: each side sends its
// [min,max] protocol range as a P_PROTOCOL frame (detected by magic,
// since no version is agreed yet) and both settle on the highest
// version both support.
func (e *Engine) handshakeProtocol() error {
	mine := make([]byte, 8)
	binary.BigEndian.PutUint32(mine[0:4], uint32(e.Server.Config.ProtocolVersionMin))
	binary.BigEndian.PutUint32(mine[4:8], uint32(e.Server.Config.ProtocolVersionMax))
	handshakeVariant := wire.VariantForVersion(wire.LatestProtocolVersion)
	if err := WriteFrame(e.Conn.DataSocket, handshakeVariant, wire.PacketInfo{Command: wire.PProtocol, Payload: mine}); err != nil {
		return err
	}

	pi, _, err := ReadHandshakeFrame(e.Conn.DataSocket)
	if err != nil {
		return err
	}
	if pi.Command != wire.PProtocol || len(pi.Payload) < 8 {
		return drbderr.ProtocolIncompatible("handshake-protocol", errBadHandshakePayload{})
	}
	peerMin := int(binary.BigEndian.Uint32(pi.Payload[0:4]))
	peerMax := int(binary.BigEndian.Uint32(pi.Payload[4:8]))

	agreed := minInt(e.Server.Config.ProtocolVersionMax, peerMax)
	if agreed < e.Server.Config.ProtocolVersionMin || agreed < peerMin {
		return drbderr.ProtocolIncompatible("handshake-protocol", errNoCommonVersion{peerMin: peerMin, peerMax: peerMax})
	}
	e.Conn.ProtocolVersion = agreed
	return nil
}

// authenticate runs spec.md 4.12's HMAC challenge-response over the
// just-negotiated data socket, using the configured AuthAlgorithm through
// definition.DefaultHashVerifier. Run calls it only when AuthAlgorithm is
// set.
func (e *Engine) authenticate() error {
	verifier := definition.NewDefaultHashVerifier()
	challenge, err := core.GenerateChallenge()
	if err != nil {
		return err
	}
	if err := WriteFrame(e.Conn.DataSocket, e.handshakeVariant(), wire.PacketInfo{Command: wire.PPing, Payload: challenge}); err != nil {
		return err
	}
	pi, err := ReadFrame(e.Conn.DataSocket, e.handshakeVariant())
	if err != nil {
		return err
	}
	peerChallenge := pi.Payload

	digest, err := core.ComputeDigest(verifier, e.Server.Config.AuthAlgorithm, []byte(e.Server.Config.SharedSecret), peerChallenge, types.NodeID(e.Server.Config.NodeID), e.Conn.ProtocolVersion)
	if err != nil {
		return err
	}
	if err := WriteFrame(e.Conn.DataSocket, e.handshakeVariant(), wire.PacketInfo{Command: wire.PPingAck, Payload: digest}); err != nil {
		return err
	}

	reply, err := ReadFrame(e.Conn.DataSocket, e.handshakeVariant())
	if err != nil {
		return err
	}
	return core.VerifyDigest(verifier, e.Server.Config.AuthAlgorithm, []byte(e.Server.Config.SharedSecret), challenge, reply.Payload, e.Conn.PeerNodeID, e.Conn.ProtocolVersion)
}

func (e *Engine) handshakeVariant() wire.HeaderVariant {
	return wire.VariantForVersion(wire.LatestProtocolVersion)
}

// runDataLoop reads frames off the data socket and dispatches writes,
// barriers, and resync data requests into the core engine (spec.md
// 4.4-4.7, 4.11).
func (e *Engine) runDataLoop(ctx context.Context, ackReader *core.AckReader) error {
	ordering := e.Server.Resource.WriteOrdering
	onBarrierAck := func(barrierNr, size uint32) {
		_ = WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{
			Command: wire.PBarrierAck,
			Payload: wire.BarrierAckHeader{BarrierNr: barrierNr, SetSize: size}.Marshal(),
		})
	}

	// issueFlush is BIO_BARRIER ordering's deferred half (spec.md 4.4):
	// tryFinish arms it once an epoch's ordinary finish conditions hold,
	// and it must flush every device this connection replicates for
	// before reporting BarrierDone, since one epoch may carry writes for
	// more than one volume.
	var issueFlush core.OnIssueFlush
	issueFlush = func(ep *core.Epoch) {
		go func() {
			for _, d := range e.Server.Resource.Devices() {
				if d.Block == nil {
					continue
				}
				if err := d.Block.Flush(ctx); err != nil {
					e.Server.Log.Warnf("device flush for barrier %d failed: %v", ep.BarrierNr, err)
				}
			}
			e.Conn.BarrierDone(ep, ordering, onBarrierAck, issueFlush)
		}()
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pi, err := ReadFrame(e.Conn.DataSocket, e.variant)
		if err != nil {
			return err
		}
		ackReader.NoteDataActivity()

		dev := e.deviceForVolume(pi.Volume)
		if dev == nil {
			continue
		}

		switch pi.Command {
		case wire.PData:
			if err := e.handleData(ctx, dev, pi, ordering, onBarrierAck, issueFlush); err != nil {
				return err
			}
		case wire.PBarrier:
			h, err := wire.UnmarshalBarrierHeader(pi.Payload)
			if err != nil {
				return drbderr.NetworkFatal("barrier", err)
			}
			e.Conn.GotBarrierNr(e.Conn.CurrentEpoch(), h.BarrierNr, ordering, onBarrierAck, issueFlush)
		case wire.PDataRequest, wire.PRSDataRequest, wire.PCsumRSRequest:
			if err := e.handleDataRequest(ctx, dev, pi); err != nil {
				return err
			}
		case wire.PBitmap:
			if err := core.ReceivePlainBitmap(dev, 0, pi.Payload); err != nil {
				return err
			}
		case wire.PCompressedBitmap:
			if _, err := core.ReceiveCompressedBitmap(dev, 0, pi.Payload); err != nil {
				return err
			}
		default:
			// Commands this simplified data loop doesn't act on (sizes,
			// state requests, UUIDs, two-PC prepare/commit/abort, ...) are
			// left to higher-level resource/state-change wiring; unknown
			// commands on this socket are otherwise ignored rather than
			// torn down, matching spec.md 7's "ignore, don't disconnect"
			// guidance for forward-compatible unrecognized frames.
		}
	}
}

func (e *Engine) handleData(ctx context.Context, dev *core.Device, pi wire.PacketInfo, ordering types.WriteOrdering, onBarrierAck core.OnBarrierAck, issueFlush core.OnIssueFlush) error {
	h, payload, err := wire.UnmarshalDataHeader(pi.Payload)
	if err != nil {
		return drbderr.NetworkFatal("data", err)
	}
	pd, ok := e.Conn.PeerDevice(dev.ID)
	if !ok {
		pd = core.NewPeerDevice(e.Conn, dev)
		e.Conn.AddPeerDevice(pd)
	}

	computed := h.Digest
	if e.Server.Config.IntegrityAlgorithm != "" {
		sum := sha256.Sum256(payload)
		computed = sum[:]
	}

	req := core.WriteRequest{
		Sector:         types.Sector(h.Sector),
		Size:           uint32(len(payload)),
		Payload:        payload,
		PeerSeq:        h.SeqNum,
		ReceivedDigest: h.Digest,
		ComputedDigest: computed,
	}
	protoLetter := byte('C')
	if h.Flags&wire.DPSendReceiveAck != 0 {
		protoLetter = 'B'
	}

	outcome, err := core.ReceiveData(ctx, e.Conn, pd, req, protoLetter, ordering, e.Server.Config.PingTimeout, wire.MinRetryWrite, onBarrierAck, issueFlush)
	if err != nil {
		return err
	}
	if !outcome.Proceed {
		if outcome.Ack.Send {
			return WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{
				Command: outcome.Ack.Command,
				Payload: wire.BlockAckHeader{Sector: h.Sector, BlockID: h.BlockID, Size: uint32(len(payload))}.Marshal(),
			})
		}
		return nil
	}
	// Protocol B: the RecvAck goes out on receipt, before submission.
	if outcome.Ack.Send {
		if err := WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{
			Command: outcome.Ack.Command,
			Payload: wire.BlockAckHeader{Sector: h.Sector, BlockID: h.BlockID, Size: uint32(len(payload))}.Marshal(),
		}); err != nil {
			return err
		}
	}

	completion := func(ioErr error) {
		e.Server.Resource.Lock()
		dev.CompleteActive(outcome.PeerReq)
		e.Server.Resource.Unlock()
		// spec.md 4.4's Put event: this write has drained from its
		// epoch's active count now that it has been submitted and acked.
		e.Conn.Put(outcome.PeerReq.Epoch, ordering, onBarrierAck, issueFlush)
		ack := ackForOutcome(outcome, ioErr)
		if ack == wire.CmdNone {
			return
		}
		_ = WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{
			Command: ack,
			Payload: wire.BlockAckHeader{Sector: h.Sector, BlockID: h.BlockID, Size: uint32(len(payload))}.Marshal(),
		})
	}
	return core.SubmitWrite(ctx, dev, outcome.PeerReq, 0, completion)
}

func ackForOutcome(outcome core.WriteOutcome, ioErr error) wire.Command {
	if ioErr != nil {
		return wire.PNegAck
	}
	switch outcome.AckClass {
	case types.AckClassB:
		return wire.CmdNone // RecvAck was already sent on receipt
	default:
		return wire.PWriteAck
	}
}

func (e *Engine) handleDataRequest(ctx context.Context, dev *core.Device, pi wire.PacketInfo) error {
	h, err := wire.UnmarshalDataRequestHeader(pi.Payload)
	if err != nil {
		return drbderr.NetworkFatal("data-request", err)
	}
	reply, err := core.ReceiveDataRequest(ctx, dev, pi.Command, types.Sector(h.Sector), h.Size, h.BlockID, dev.RateLimiter)
	if err != nil {
		return err
	}
	return WriteFrame(e.Conn.DataSocket, e.variant, wire.PacketInfo{
		Command: reply.Command,
		Payload: append(wire.DataHeader{Sector: uint64(reply.Sector), BlockID: reply.BlockID}.Marshal(), reply.Data...),
	})
}

// runAckLoop reads frames off the meta socket and dispatches every
// acknowledgement class through core.AckReader (spec.md 4.8), plus the
// P_PING/P_PING_ACK keepalive exchange.
func (e *Engine) runAckLoop(ctx context.Context, ackReader *core.AckReader) error {
	ordering := e.Server.Resource.WriteOrdering
	onBarrierAck := func(barrierNr, size uint32) {}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pi, err := ReadFrame(e.Conn.MetaSocket, e.variant)
		if err != nil {
			return err
		}
		if pi.Command == wire.PPing {
			if err := WriteFrame(e.Conn.MetaSocket, e.variant, wire.PacketInfo{Command: wire.PPingAck}); err != nil {
				return err
			}
			continue
		}
		dev := e.deviceForVolume(pi.Volume)
		// nil issueFlush: a P_BARRIER_ACK on the meta socket finishes an
		// entry in this node's own transmit log (spec.md 4.8), not a
		// receive-side BIO_BARRIER epoch, so there is no local flush to
		// dispatch here.
		if err := ackReader.Dispatch(dev, pi, ordering, onBarrierAck, nil); err != nil {
			return err
		}
	}
}

func (e *Engine) deviceForVolume(vol int16) *core.Device {
	devices := e.Server.Resource.Devices()
	if len(devices) == 0 {
		return nil
	}
	if vol < 0 || int(vol) >= len(devices) {
		return devices[0]
	}
	return devices[vol]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type errBadHandshakePayload struct{}

func (errBadHandshakePayload) Error() string { return "malformed P_PROTOCOL handshake payload" }

type errNoCommonVersion struct {
	peerMin, peerMax int
}

func (e errNoCommonVersion) Error() string { return "no protocol version in common with peer" }
