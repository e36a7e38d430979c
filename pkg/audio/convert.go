package audio

import "encoding/binary"

// bitsPerSample is fixed at 16 for the signed little-endian PCM used on every
// wire boundary (Opus decode output, STT upload, playback).
const bitsPerSample = 16

// Int16ToFloat32 converts signed 16-bit PCM samples to normalized float32
// samples in [-1, 1).
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts normalized float32 samples to signed 16-bit PCM,
// clamping values outside [-1, 1].
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(s * 32767)
		out[i] = int16(v)
	}
	return out
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// BytesToInt16s converts little-endian PCM bytes to int16 samples. A trailing
// odd byte is dropped.
func BytesToInt16s(b []byte) []int16 {
	n := len(b) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}

// ResampleMono resamples normalized mono samples from fromRate to toRate using
// linear interpolation. Quality is sufficient for VAD/STT input; this is not a
// mastering-grade resampler.
func ResampleMono(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(in) == 0 {
		return in
	}
	outLen := len(in) * toRate / fromRate
	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

// EncodeWAV wraps normalized samples in a standard RIFF/WAV container as
// 16-bit signed little-endian mono PCM. The result is suitable for direct
// inclusion in a multipart upload to a transcription endpoint.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	pcm := Int16sToBytes(Float32ToInt16(samples))
	return EncodeWAVFromPCM(pcm, sampleRate, 1)
}

// EncodeWAVFromPCM wraps raw 16-bit signed little-endian PCM bytes in a
// RIFF/WAV container.
func EncodeWAVFromPCM(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
