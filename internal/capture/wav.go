package capture

import (
	"bytes"
	"encoding/binary"
	"time"
)

const MediaTypeWAV = "audio/wav"

// Format describes the raw PCM delivered by the audio source.
type Format struct {
	SampleRate int
	Channels   int
}

const bitsPerSample = 16

func (f Format) byteRate() int {
	return f.SampleRate * f.Channels * bitsPerSample / 8
}

// Duration of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	rate := f.byteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// EncodeWAV wraps raw 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.byteRate()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes()
}
