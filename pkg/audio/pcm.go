package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// ChunkPCM splits PCM audio into fixed-size chunks. The final chunk may be
// shorter. Chunk boundaries never split a 16-bit sample when chunkSize is even.
func ChunkPCM(pcmData []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = 640
	}

	var chunks [][]byte
	for i := 0; i < len(pcmData); i += chunkSize {
		end := i + chunkSize
		if end > len(pcmData) {
			end = len(pcmData)
		}
		chunks = append(chunks, pcmData[i:end])
	}
	return chunks
}

// EncodePCMChunkToBase64 encodes a PCM chunk for JSON transports.
func EncodePCMChunkToBase64(pcmChunk []byte) string {
	return base64.StdEncoding.EncodeToString(pcmChunk)
}

// DecodeBase64PCM decodes base64-encoded PCM.
func DecodeBase64PCM(base64Data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Data)
}

// WrapPCMInWAV prepends a 44-byte WAV header to raw 16-bit mono PCM so it
// can be uploaded to transcription APIs that refuse headerless audio.
func WrapPCMInWAV(pcmData []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	const (
		bitsPerSample = 16
		channels      = 1
	)
	dataSize := len(pcmData)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	wav := make([]byte, 44+dataSize)
	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")
	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(wav[22:24], channels)
	binary.LittleEndian.PutUint32(wav[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], bitsPerSample)
	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))
	copy(wav[44:], pcmData)
	return wav
}

// RMSEnergy computes the root-mean-square amplitude of 16-bit little-endian
// mono PCM. Used as the voice-activity threshold for barge-in detection.
func RMSEnergy(pcmData []byte) int {
	sampleCount := len(pcmData) / 2
	if sampleCount == 0 {
		return 0
	}

	var sumSquares int64
	for i := 0; i < sampleCount; i++ {
		s := int64(int16(binary.LittleEndian.Uint16(pcmData[i*2:])))
		sumSquares += s * s
	}

	mean := sumSquares / int64(sampleCount)
	return isqrt(mean)
}

func isqrt(n int64) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return int(x)
}
