package audio

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// Peak returns the largest absolute sample amplitude in the s16le buffer,
// normalised to [0, 1].
func Peak(pcm []byte) float64 {
	var max int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(pcm[i]) | int16(pcm[i+1])<<8)
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return float64(max) / 32768.0
}
