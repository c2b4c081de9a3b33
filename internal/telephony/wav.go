package telephony

import (
	"bytes"
	"encoding/binary"
)

// WAVInfo describes the format chunk of a RIFF/WAVE buffer.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// StripWAVHeader returns the PCM payload of a RIFF/WAVE buffer. Buffers that are
// not WAV are returned unchanged with ok=false.
func StripWAVHeader(b []byte) (pcm []byte, info WAVInfo, ok bool) {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b, WAVInfo{}, false
	}
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if body+16 <= len(b) {
				info.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			}
		case "data":
			end := body + size
			if end > len(b) || size == 0 {
				end = len(b)
			}
			return b[body:end], info, true
		}
		pos = body + size + size%2
	}
	return nil, info, true
}
