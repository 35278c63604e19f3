package audio

// DecodeMuLawToPCM16 converts G.711 μ-law samples to 16-bit little-endian
// PCM per ITU-T G.711. Some carrier legs deliver μ-law instead of raw PCM.
func DecodeMuLawToPCM16(muLaw []byte) []byte {
	if len(muLaw) == 0 {
		return nil
	}

	pcm := make([]int16, len(muLaw))
	for i, mu := range muLaw {
		mu = ^mu // stored inverted

		sign := (mu & 0x80) >> 7
		exponent := (mu & 0x70) >> 4
		mantissa := mu & 0x0F

		var linear int16
		if exponent == 0 {
			linear = int16(33 + 2*mantissa)
		} else {
			linear = int16((33 + 2*int(mantissa)) << (exponent - 1))
			linear -= 33
		}

		if sign == 0 {
			linear = -linear
		}
		pcm[i] = linear
	}

	return samplesToBytes(pcm)
}
