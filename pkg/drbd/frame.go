package drbd

import (
	"io"
	"net"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// ReadFrame reads one full frame (header + payload) off conn using the
// given header variant. Used once a protocol version has been
// negotiated and every frame on this socket uses a fixed variant.
func ReadFrame(conn net.Conn, variant wire.HeaderVariant) (wire.PacketInfo, error) {
	hdr := make([]byte, wire.HeaderSize(variant))
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return wire.PacketInfo{}, drbderr.NetworkTransient("read-frame-header", err)
	}
	pi, err := wire.DecodeHeader(variant, hdr)
	if err != nil {
		return wire.PacketInfo{}, drbderr.NetworkFatal("read-frame-header", err)
	}
	if pi.Size > 0 {
		payload := make([]byte, pi.Size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return wire.PacketInfo{}, drbderr.NetworkTransient("read-frame-payload", err)
		}
		pi.Payload = payload
	}
	return pi, nil
}

// ReadHandshakeFrame reads a frame whose header variant is not yet
// known, by peeking the first 4 bytes and letting wire.DetectVariant
// pick the shape. Used only for the very first frame(s) on a socket,
// before protocol version negotiation pins a variant.
func ReadHandshakeFrame(conn net.Conn) (wire.PacketInfo, wire.HeaderVariant, error) {
	peek := make([]byte, 4)
	if _, err := io.ReadFull(conn, peek); err != nil {
		return wire.PacketInfo{}, 0, drbderr.NetworkTransient("read-handshake-peek", err)
	}
	variant, err := wire.DetectVariant(peek)
	if err != nil {
		return wire.PacketInfo{}, 0, drbderr.NetworkFatal("read-handshake-peek", err)
	}
	rest := make([]byte, wire.HeaderSize(variant)-len(peek))
	if len(rest) > 0 {
		if _, err := io.ReadFull(conn, rest); err != nil {
			return wire.PacketInfo{}, 0, drbderr.NetworkTransient("read-handshake-header", err)
		}
	}
	full := append(peek, rest...)
	pi, err := wire.DecodeHeader(variant, full)
	if err != nil {
		return wire.PacketInfo{}, 0, drbderr.NetworkFatal("read-handshake-header", err)
	}
	if pi.Size > 0 {
		payload := make([]byte, pi.Size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return wire.PacketInfo{}, 0, drbderr.NetworkTransient("read-handshake-payload", err)
		}
		pi.Payload = payload
	}
	return pi, variant, nil
}

// WriteFrame encodes and writes one full frame to conn.
func WriteFrame(conn net.Conn, variant wire.HeaderVariant, pi wire.PacketInfo) error {
	pi.Size = uint32(len(pi.Payload))
	hdr, err := wire.EncodeHeader(variant, pi)
	if err != nil {
		return drbderr.NetworkFatal("write-frame-header", err)
	}
	if _, err := conn.Write(hdr); err != nil {
		return drbderr.NetworkTransient("write-frame-header", err)
	}
	if len(pi.Payload) > 0 {
		if _, err := conn.Write(pi.Payload); err != nil {
			return drbderr.NetworkTransient("write-frame-payload", err)
		}
	}
	return nil
}
