package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// The browser gateway negotiates 48 kHz mono Opus at 20 ms frame size for the
// microphone uplink and the playback downlink.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder wraps a gopus decoder for a single mic uplink. Each connection
// gets its own decoder so decoder state stays correct across consecutive
// packets. Not safe for concurrent use.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder configured for the gateway's mic format.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into normalized mono samples at 48 kHz.
func (d *OpusDecoder) Decode(packet []byte) ([]float32, error) {
	pcm, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16ToFloat32(pcm), nil
}

// OpusEncoder wraps a gopus encoder for the playback downlink.
// Not safe for concurrent use.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an encoder configured for the gateway's playback
// format.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one 20 ms block of 48 kHz mono PCM (as little-endian int16
// bytes) into an Opus packet.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	if len(pcm) != opusFrameSize {
		return nil, fmt.Errorf("audio: opus encode: expected %d samples, got %d", opusFrameSize, len(pcm))
	}
	packet, err := e.enc.Encode(pcm, opusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return packet, nil
}
