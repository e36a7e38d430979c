package gateway

import (
	"fmt"
	"time"

	"github.com/tugatalk/tugatalk/pkg/audio"
)

// opusWireRate is the fixed uplink rate for the opus codec.
const opusWireRate = 48000

// frameDecoder turns raw uplink payloads into detector-sized frames. Payload
// boundaries rarely line up with frame boundaries, so samples accumulate in
// a buffer and full frames are cut from the front. Not safe for concurrent
// use; the read loop is the only caller.
type frameDecoder struct {
	codec        Codec
	opus         *audio.OpusDecoder
	inputRate    int
	sampleRate   int
	frameSamples int

	buf     []float32
	elapsed int64 // total samples emitted, for frame timestamps
}

// newFrameDecoder validates the negotiated start message and builds the
// matching decoder.
func (s *Server) newFrameDecoder(start StartMessage) (*frameDecoder, error) {
	codec := start.Codec
	if codec == "" {
		codec = CodecPCM16
	}
	if !codec.IsValid() {
		return nil, fmt.Errorf("gateway: unsupported codec %q", codec)
	}

	d := &frameDecoder{
		codec:        codec,
		sampleRate:   s.sampleRate,
		frameSamples: s.frameSamples,
	}

	switch codec {
	case CodecPCM16:
		d.inputRate = start.SampleRate
		if d.inputRate == 0 {
			d.inputRate = s.sampleRate
		}
		if d.inputRate < 0 {
			return nil, fmt.Errorf("gateway: invalid sample rate %d", start.SampleRate)
		}
	case CodecOpus:
		dec, err := audio.NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		d.opus = dec
		d.inputRate = opusWireRate
	}

	return d, nil
}

// decode converts one uplink payload into zero or more full frames at the
// pipeline's sample rate. Leftover samples stay buffered for the next call.
func (d *frameDecoder) decode(payload []byte) ([]audio.Frame, error) {
	var samples []float32
	switch d.codec {
	case CodecOpus:
		pcm, err := d.opus.Decode(payload)
		if err != nil {
			return nil, err
		}
		samples = pcm
	default:
		if len(payload)%2 != 0 {
			return nil, fmt.Errorf("gateway: pcm16 payload has odd length %d", len(payload))
		}
		samples = audio.Int16ToFloat32(audio.BytesToInt16s(payload))
	}

	if d.inputRate != d.sampleRate {
		samples = audio.ResampleMono(samples, d.inputRate, d.sampleRate)
	}
	d.buf = append(d.buf, samples...)

	var frames []audio.Frame
	for len(d.buf) >= d.frameSamples {
		chunk := make([]float32, d.frameSamples)
		copy(chunk, d.buf[:d.frameSamples])
		d.buf = d.buf[d.frameSamples:]

		frames = append(frames, audio.Frame{
			Samples:    chunk,
			SampleRate: d.sampleRate,
			Timestamp:  time.Duration(d.elapsed) * time.Second / time.Duration(d.sampleRate),
		})
		d.elapsed += int64(d.frameSamples)
	}
	return frames, nil
}
