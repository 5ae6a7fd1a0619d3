// Package pcm converts and resamples 16-bit little-endian PCM audio.
// Rates in this codebase are always integer multiples of each other
// (48 kHz on the wire, 16 kHz in the pipeline), so resampling is plain
// decimation and repetition.
package pcm

import "encoding/binary"

// FromLE decodes little-endian bytes into int16 samples. A trailing odd
// byte is dropped.
func FromLE(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// ToLE encodes int16 samples as little-endian bytes.
func ToLE(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// Downsample reduces the sample rate by factor, averaging each group to
// keep a little of the energy that plain decimation would alias away.
func Downsample(samples []int16, factor int) []int16 {
	if factor <= 1 {
		return samples
	}
	out := make([]int16, 0, len(samples)/factor)
	for i := 0; i+factor <= len(samples); i += factor {
		var sum int
		for j := 0; j < factor; j++ {
			sum += int(samples[i+j])
		}
		out = append(out, int16(sum/factor))
	}
	return out
}

// Upsample raises the sample rate by factor through sample repetition.
func Upsample(samples []int16, factor int) []int16 {
	if factor <= 1 {
		return samples
	}
	out := make([]int16, 0, len(samples)*factor)
	for _, s := range samples {
		for j := 0; j < factor; j++ {
			out = append(out, s)
		}
	}
	return out
}
