package session

import (
	"testing"
)

// FuzzRecordDecode feeds arbitrary bytes to the decoder.
// Goal: no panics, and anything accepted re-encodes to the same bytes.
func FuzzRecordDecode(f *testing.F) {
	encoded, err := Encode(sampleRecord())
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{recordFormatVersionCurrent})
	f.Add([]byte{255, 255, 255})

	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 40 {
		f.Add(encoded[:40])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(r)
		if err != nil {
			t.Fatalf("decoded record failed to re-encode: %v", err)
		}
		if string(again) != string(data) {
			t.Fatalf("re-encode mismatch")
		}
	})
}
