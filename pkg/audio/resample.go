package audio

import "encoding/binary"

// Resample8kTo16k doubles the sample rate of 16-bit mono PCM using linear
// interpolation. Telephony legs often deliver 8kHz while the transcription
// providers expect 16kHz.
func Resample8kTo16k(pcm8k []byte) []byte {
	if len(pcm8k) < 2 {
		return nil
	}

	in := bytesToSamples(pcm8k)
	out := make([]int16, len(in)*2)

	for i, s := range in {
		out[i*2] = s
		if i < len(in)-1 {
			out[i*2+1] = int16((int32(s) + int32(in[i+1])) / 2)
		} else {
			out[i*2+1] = s
		}
	}

	return samplesToBytes(out)
}

// Resample16kTo8k halves the sample rate of 16-bit mono PCM by decimation.
func Resample16kTo8k(pcm16k []byte) []byte {
	if len(pcm16k) < 2 {
		return nil
	}

	in := bytesToSamples(pcm16k)
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = in[i*2]
	}

	return samplesToBytes(out)
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
