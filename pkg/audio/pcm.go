package audio

import "encoding/base64"

// EncodePCM16 converts normalized samples to signed 16-bit little-endian
// PCM. Samples are clamped to [-1, 1] first, so out-of-range input can
// never wrap. Negative samples scale by 32768 and non-negative by 32767,
// reaching both ends of the int16 range without overflow.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodePCM16 converts signed 16-bit little-endian PCM back to normalized
// samples, scaling by 1/32768. A trailing odd byte is ignored. The
// round-trip with [EncodePCM16] is not exact, only equivalent within
// quantization noise.
func DecodePCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodePayload encodes raw PCM bytes as base64 so they can travel inside
// a JSON string field.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload reverses [EncodePayload]. It is a bijection: decoding the
// encoding of any byte sequence yields exactly that sequence.
func DecodePayload(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}
