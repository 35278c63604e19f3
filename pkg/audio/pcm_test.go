package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestChunkPCM(t *testing.T) {
	tests := []struct {
		name      string
		dataLen   int
		chunkSize int
		wantLens  []int
	}{
		{name: "exact multiple", dataLen: 1280, chunkSize: 640, wantLens: []int{640, 640}},
		{name: "trailing short chunk", dataLen: 1000, chunkSize: 640, wantLens: []int{640, 360}},
		{name: "smaller than chunk", dataLen: 100, chunkSize: 640, wantLens: []int{100}},
		{name: "empty", dataLen: 0, chunkSize: 640, wantLens: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkPCM(make([]byte, tt.dataLen), tt.chunkSize)
			if len(chunks) != len(tt.wantLens) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.wantLens))
			}
			for i, want := range tt.wantLens {
				if len(chunks[i]) != want {
					t.Errorf("chunk %d len = %d, want %d", i, len(chunks[i]), want)
				}
			}
		})
	}
}

func TestBase64PCMRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0xFF, 0x7F}
	decoded, err := DecodeBase64PCM(EncodePCMChunkToBase64(pcm))
	if err != nil {
		t.Fatalf("DecodeBase64PCM() err = %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Errorf("round trip = %v, want %v", decoded, pcm)
	}
}

func TestWrapPCMInWAV(t *testing.T) {
	pcm := make([]byte, 320)
	wav := WrapPCMInWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestRMSEnergy(t *testing.T) {
	silence := make([]byte, 640)
	if got := RMSEnergy(silence); got != 0 {
		t.Errorf("RMSEnergy(silence) = %d, want 0", got)
	}

	loud := make([]byte, 640)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(8000)))
	}
	if got := RMSEnergy(loud); got != 8000 {
		t.Errorf("RMSEnergy(constant 8000) = %d, want 8000", got)
	}

	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %d, want 0", got)
	}
}

func TestResampleRoundTrip(t *testing.T) {
	pcm8k := make([]byte, 0, 32)
	for i := 0; i < 16; i++ {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(i*100)))
		pcm8k = append(pcm8k, b[:]...)
	}

	up := Resample8kTo16k(pcm8k)
	if len(up) != len(pcm8k)*2 {
		t.Fatalf("upsampled len = %d, want %d", len(up), len(pcm8k)*2)
	}

	down := Resample16kTo8k(up)
	if !bytes.Equal(down, pcm8k) {
		t.Error("decimating interpolated audio did not restore original samples")
	}
}

func TestDecodeMuLawToPCM16(t *testing.T) {
	out := DecodeMuLawToPCM16([]byte{0xFF, 0x7F})
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}

	// Near-zero codes decode to small magnitudes of opposite sign.
	first := int16(binary.LittleEndian.Uint16(out[0:2]))
	second := int16(binary.LittleEndian.Uint16(out[2:4]))
	if first >= 0 {
		t.Errorf("0xFF decoded to %d, want negative", first)
	}
	if second <= 0 {
		t.Errorf("0x7F decoded to %d, want positive", second)
	}

	if DecodeMuLawToPCM16(nil) != nil {
		t.Error("nil input should decode to nil")
	}
}
