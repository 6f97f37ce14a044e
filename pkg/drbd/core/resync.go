package core

import (
	"context"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// DataRequestReply is what ReceiveDataRequest hands back to the caller
// to send on the wire: either a data/rs-data-reply payload, or a
// negative ack when the read fails.
type DataRequestReply struct {
	Command wire.Command // PDataReply, PRSDataReply, or PNegDReply/PNegRSDReply
	Sector  types.Sector
	Size    uint32
	BlockID wire.BlockID
	Data    []byte
}

// ReceiveDataRequest services P_DATA_REQUEST / P_RS_DATA_REQUEST /
// P_CSUM_RS_REQUEST / P_OV_REQUEST (spec.md 4.5's write pipeline
// companion on the read side, referenced but not detailed by spec.md
// 4; behavior follows 4.11's symmetric "read and reply" shape). A rate
// limiter, when the request is resync traffic, may defer the read.
func ReceiveDataRequest(ctx context.Context, dev *Device, cmd wire.Command, sector types.Sector, size uint32, blockID wire.BlockID, limiter *RateLimiter) (DataRequestReply, error) {
	isResync := cmd == wire.PRSDataRequest || cmd == wire.PCsumRSRequest
	if isResync && limiter != nil && !limiter.Allow(size) {
		return DataRequestReply{}, drbderr.Resource("resync-rate-limit", errRateLimited)
	}
	if dev.Block == nil {
		return DataRequestReply{}, drbderr.LocalIO("data-request", errNoBlockLayer)
	}
	data, err := dev.Block.Read(ctx, sector, size)
	if err != nil {
		reply := DataRequestReply{Sector: sector, Size: size, BlockID: blockID}
		if isResync {
			reply.Command = wire.PNegRSDReply
		} else {
			reply.Command = wire.PNegDReply
		}
		return reply, nil
	}
	reply := DataRequestReply{Sector: sector, Size: size, BlockID: blockID, Data: data}
	if cmd == wire.PRSDataRequest || cmd == wire.PCsumRSRequest {
		reply.Command = wire.PRSDataReply
	} else {
		reply.Command = wire.PDataReply
	}
	return reply, nil
}

// ReceiveOVResult applies a P_OV_RESULT verdict (online-verify compare
// outcome) to the bitmap: mismatching ranges are marked out of sync,
// matching ranges cleared, same as a resync completion would do.
func ReceiveOVResult(dev *Device, sector types.Sector, size uint32, inSync bool) {
	if dev.Bitmap == nil {
		return
	}
	if inSync {
		dev.Bitmap.ClearOutOfSync(sector, size)
	} else {
		dev.Bitmap.SetOutOfSync(sector, size)
	}
}

var (
	errRateLimited  = rateLimitError{}
	errNoBlockLayer = noBlockLayerError{}
)

type rateLimitError struct{}

func (rateLimitError) Error() string { return "resync request exceeds configured rate limit" }

type noBlockLayerError struct{}

func (noBlockLayerError) Error() string { return "no block layer configured" }
