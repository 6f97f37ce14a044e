package core

import (
	"fmt"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
)

// ReceivePlainBitmap applies a plain little-endian bit-array chunk at
// bitOffset to dev's bitmap (spec.md 4.11's first encoding).
func ReceivePlainBitmap(dev *Device, bitOffset uint64, chunk []byte) error {
	if dev.Bitmap == nil {
		return nil
	}
	total := dev.Bitmap.TotalBits()
	for i, b := range chunk {
		for bit := 0; bit < 8; bit++ {
			pos := bitOffset + uint64(i)*8 + uint64(bit)
			if pos >= total {
				if b&(1<<uint(bit)) != 0 {
					return drbderr.NetworkFatal("plain-bitmap", fmt.Errorf("bit offset %d exceeds total bits %d", pos, total))
				}
				continue
			}
			dev.Bitmap.ApplyRun(pos, 1, b&(1<<uint(bit)) != 0)
		}
	}
	return nil
}

// rleBitReader is a bitstream reader over a byte slice, LSB-first
// within each byte, matching spec.md 4.11's "4-bit leading code + 3-bit
// pad count + 1 start-bit" framing.
type rleBitReader struct {
	data []byte
	pos  int // bit position
}

func (r *rleBitReader) bitsLeft() int { return len(r.data)*8 - r.pos }

func (r *rleBitReader) readBit() (int, bool) {
	if r.bitsLeft() <= 0 {
		return 0, false
	}
	byteIdx := r.pos / 8
	bitIdx := uint(r.pos % 8)
	r.pos++
	return int((r.data[byteIdx] >> bitIdx) & 1), true
}

func (r *rleBitReader) readBits(n int) (uint64, bool) {
	var v uint64
	for i := 0; i < n; i++ {
		b, ok := r.readBit()
		if !ok {
			return 0, false
		}
		v |= uint64(b) << uint(i)
	}
	return v, true
}

// readVLI reads a DRBD-style variable-length run-length integer: groups
// of 4 bits where the leading bit of each group signals continuation and
// the low 3 bits carry the value, least-significant group first.
// The exact VLI bit-packing used by DRBD's C implementation was not
// retrievable (original_source's code was stripped by the retrieval
// cap); this decodes the framing spec.md 4.11 documents in prose — a
// leading 4-bit code, continuing while the code's top bit is set.
func (r *rleBitReader) readVLI() (uint64, error) {
	var value uint64
	shift := uint(0)
	for {
		nibble, ok := r.readBits(4)
		if !ok {
			return 0, fmt.Errorf("truncated VLI run length")
		}
		value |= (nibble & 0x7) << shift
		if nibble&0x8 == 0 {
			break
		}
		shift += 3
		if shift > 64 {
			return 0, fmt.Errorf("VLI run length overflow")
		}
	}
	return value, nil
}

// ReceiveCompressedBitmap decodes an RLE-compressed bitmap chunk
// (spec.md 4.11's second encoding) starting at bitOffset, alternating
// clear/set runs beginning with the frame's start-bit, and ORs set
// runs into dev's bitmap. Returns the new bit offset after the chunk.
func ReceiveCompressedBitmap(dev *Device, bitOffset uint64, chunk []byte) (uint64, error) {
	r := &rleBitReader{data: chunk}

	if _, ok := r.readBits(4); !ok {
		return bitOffset, drbderr.NetworkFatal("compressed-bitmap", fmt.Errorf("empty RLE chunk"))
	}
	padCount, okPad := r.readBits(3)
	startBit, okStart := r.readBits(1)
	if !okPad || !okStart {
		return bitOffset, drbderr.NetworkFatal("compressed-bitmap", fmt.Errorf("truncated RLE chunk header"))
	}

	set := startBit != 0
	offset := bitOffset
	total := uint64(0)
	if dev.Bitmap != nil {
		total = dev.Bitmap.TotalBits()
	}

	for offset < total {
		if r.bitsLeft()-int(padCount) < 4 {
			break
		}
		runLen, err := r.readVLI()
		if err != nil {
			return offset, drbderr.NetworkFatal("compressed-bitmap", err)
		}
		if runLen == 0 {
			return offset, drbderr.NetworkFatal("compressed-bitmap", fmt.Errorf("zero-length run (unknown code)"))
		}
		if set && dev.Bitmap != nil {
			dev.Bitmap.ApplyRun(offset, runLen, true)
		}
		offset += runLen
		set = !set
	}
	return offset, nil
}

// BitmapTransferComplete reports whether the cumulative bit offset
// received so far covers the device's whole bitmap (spec.md 4.11's
// termination condition).
func BitmapTransferComplete(dev *Device, bitOffset uint64) bool {
	if dev.Bitmap == nil {
		return true
	}
	return bitOffset >= dev.Bitmap.TotalBits()
}
