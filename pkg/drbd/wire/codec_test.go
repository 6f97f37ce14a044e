package wire

import "testing"

// Round-trip property from spec.md 8: encoding then decoding any header
// variant returns identical (command, length, volume). Style follows the
// teacher's manual t.Errorf/t.Fatalf assertions (test/log_test.go), no
// assertion library.
func TestCodec_HeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		v      HeaderVariant
		pi     PacketInfo
	}{
		{"v80", HeaderV80, PacketInfo{Command: PData, Size: 4096, Volume: -1}},
		{"v95", HeaderV95, PacketInfo{Command: PBarrier, Size: 0, Volume: -1}},
		{"v100-no-volume", HeaderV100, PacketInfo{Command: PBitmap, Size: 65536, Volume: -1}},
		{"v100-with-volume", HeaderV100, PacketInfo{Command: PData, Size: 512, Volume: 3}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := EncodeHeader(c.v, c.pi)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if len(encoded) != HeaderSize(c.v) {
				t.Fatalf("expected %d bytes, got %d", HeaderSize(c.v), len(encoded))
			}

			decoded, err := DecodeHeader(c.v, encoded)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if decoded.Command != c.pi.Command {
				t.Errorf("command mismatch: expected %s, got %s", c.pi.Command, decoded.Command)
			}
			if decoded.Size != c.pi.Size {
				t.Errorf("size mismatch: expected %d, got %d", c.pi.Size, decoded.Size)
			}
			if c.v == HeaderV100 && decoded.Volume != c.pi.Volume {
				t.Errorf("volume mismatch: expected %d, got %d", c.pi.Volume, decoded.Volume)
			}
		})
	}
}

func TestCodec_DetectVariant(t *testing.T) {
	for _, c := range []struct {
		name string
		v    HeaderVariant
	}{
		{"v80", HeaderV80},
		{"v95", HeaderV95},
		{"v100", HeaderV100},
	} {
		header, err := EncodeHeader(c.v, PacketInfo{Command: PPing, Size: 0, Volume: -1})
		if err != nil {
			t.Fatalf("%s: encode failed: %v", c.name, err)
		}
		got, err := DetectVariant(header)
		if err != nil {
			t.Fatalf("%s: detect failed: %v", c.name, err)
		}
		if got != c.v {
			t.Errorf("%s: expected variant %d, got %d", c.name, c.v, got)
		}
	}
}

func TestCodec_MalformedMagicIsRejected(t *testing.T) {
	buf := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := DecodeHeader(HeaderV80, buf); err == nil {
		t.Fatalf("expected malformed frame error for bad magic")
	}
}

func TestCodec_V100RejectsNonZeroPad(t *testing.T) {
	header, err := EncodeHeader(HeaderV100, PacketInfo{Command: PData, Size: 0, Volume: 0})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	header[12] = 0xFF
	if _, err := DecodeHeader(HeaderV100, header); err == nil {
		t.Fatalf("expected pad mismatch to be rejected")
	}
}
