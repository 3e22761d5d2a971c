// Package metatest builds small tagged audio fixtures for tests.
package metatest

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

// WriteID3 writes an MP3 stub at path carrying an ID3v2.3 tag with the given
// track number and title. An empty track or title omits that frame.
func WriteID3(t testing.TB, path, track, title string) {
	t.Helper()

	var frames bytes.Buffer
	if track != "" {
		writeTextFrame(&frames, "TRCK", track)
	}
	if title != "" {
		writeTextFrame(&frames, "TIT2", title)
	}

	var buf bytes.Buffer
	buf.WriteString("ID3")
	buf.Write([]byte{0x03, 0x00, 0x00})
	buf.Write(syncsafe(frames.Len()))
	buf.Write(frames.Bytes())
	// A few bytes of fake MPEG frame sync so the file is not tag-only.
	buf.Write([]byte{0xFF, 0xFB, 0x90, 0x00})

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}

func writeTextFrame(w *bytes.Buffer, id, text string) {
	payload := append([]byte{0x00}, text...)
	w.WriteString(id)
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))
	w.Write(size[:])
	w.Write([]byte{0x00, 0x00})
	w.Write(payload)
}

func syncsafe(n int) []byte {
	return []byte{
		byte(n>>21) & 0x7F,
		byte(n>>14) & 0x7F,
		byte(n>>7) & 0x7F,
		byte(n) & 0x7F,
	}
}
