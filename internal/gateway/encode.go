package gateway

import (
	"fmt"

	"github.com/tugatalk/tugatalk/pkg/audio"
)

// playbackBlockBytes is 20 ms of 16-bit mono PCM at 48 kHz, the block an
// opus packet carries. The player delivers playback audio in blocks of
// exactly this size, so the encoder only sees a shorter slice at a clip
// tail.
const playbackBlockBytes = 1920

// downlinkEncoder converts playback PCM into opus packets for clients that
// negotiated an opus downlink. Not safe for concurrent use; the write loop
// is the only caller.
type downlinkEncoder struct {
	enc *audio.OpusEncoder
}

// newDownlinkEncoder returns nil for the default pcm16 downlink, so the
// write loop forwards playback chunks untouched.
func newDownlinkEncoder(codec Codec) (*downlinkEncoder, error) {
	switch codec {
	case "", CodecPCM16:
		return nil, nil
	case CodecOpus:
		enc, err := audio.NewOpusEncoder()
		if err != nil {
			return nil, err
		}
		return &downlinkEncoder{enc: enc}, nil
	default:
		return nil, fmt.Errorf("gateway: unsupported playback codec %q", codec)
	}
}

// encode turns one playback chunk into opus packets. A partial block at a
// clip tail is padded with silence to fill the final packet.
func (e *downlinkEncoder) encode(chunk []byte) ([][]byte, error) {
	packets := make([][]byte, 0, (len(chunk)+playbackBlockBytes-1)/playbackBlockBytes)
	for off := 0; off < len(chunk); off += playbackBlockBytes {
		block := chunk[off:]
		if len(block) >= playbackBlockBytes {
			block = block[:playbackBlockBytes]
		} else {
			padded := make([]byte, playbackBlockBytes)
			copy(padded, block)
			block = padded
		}
		pkt, err := e.enc.Encode(block)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode playback block: %w", err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
