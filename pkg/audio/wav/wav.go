// Package wav encodes and decodes 16-bit PCM WAV, the interchange format
// for batch speech providers.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const headerSize = 44

// Encode wraps raw 16-bit little-endian PCM in a WAV container.
func Encode(pcm []byte, sampleRate, numChannels int) []byte {
	byteRate := sampleRate * numChannels * 2
	blockAlign := numChannels * 2

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Info describes a decoded WAV payload.
type Info struct {
	SampleRate  int
	NumChannels int
}

// Decode extracts the PCM payload and format from a WAV container.
// Only 16-bit PCM is supported.
func Decode(data []byte) ([]byte, Info, error) {
	if len(data) < headerSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Info{}, fmt.Errorf("wav: not a RIFF/WAVE container")
	}

	format := binary.LittleEndian.Uint16(data[20:22])
	if format != 1 {
		return nil, Info{}, fmt.Errorf("wav: unsupported format %d, want PCM", format)
	}
	bits := binary.LittleEndian.Uint16(data[34:36])
	if bits != 16 {
		return nil, Info{}, fmt.Errorf("wav: unsupported bit depth %d, want 16", bits)
	}

	info := Info{
		SampleRate:  int(binary.LittleEndian.Uint32(data[24:28])),
		NumChannels: int(binary.LittleEndian.Uint16(data[22:24])),
	}

	// Walk chunks from offset 12 to find "data"; some encoders insert
	// LIST or fact chunks before it.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(data) {
				end = len(data)
			}
			return data[off+8 : end], info, nil
		}
		off += 8 + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, Info{}, fmt.Errorf("wav: no data chunk")
}
