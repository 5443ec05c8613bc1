package voice

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Audio formats spoken on the wire. Capture runs at 16kHz, the model
// answers at 24kHz. Both are 16-bit little-endian mono PCM.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000

	CaptureMIME = "audio/pcm;rate=16000"
)

// Float32ToPCM converts normalized samples in [-1.0, 1.0] to signed
// 16-bit values. Values are scaled by 32768 and clamped so that a full
// scale +1.0 sample does not wrap around.
func Float32ToPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// PCMToFloat32 converts signed 16-bit samples back to normalized floats.
func PCMToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCMBytes serializes samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM parses little-endian 16-bit PCM. A trailing odd byte is
// dropped.
func BytesToPCM(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodeFrame packages a capture frame for transmission: little-endian
// bytes, base64-encoded.
func EncodeFrame(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCMBytes(samples))
}

// DecodeChunk converts a base64 PCM payload from the model into
// normalized float samples ready for playback scheduling.
func DecodeChunk(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("audio chunk too short: %d bytes", len(raw))
	}
	return PCMToFloat32(BytesToPCM(raw)), nil
}
