// Package audio converts between the telephony codec (G.711 mu-law, 8 kHz)
// and the PCM16 little-endian streams the provider speaks.
package audio

import "encoding/binary"

var muLawToPCMTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		muLawToPCMTable[i] = decodeMuLaw(byte(i))
	}
}

// Based on the Sun Microsystems G.711 reference implementation.
func decodeMuLaw(u byte) int16 {
	u = ^u

	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	// 0x84 is the mu-law bias (33) pre-shifted by 2.
	sample := int16((int32(mantissa)<<3 + 0x84) << exponent)
	sample -= 0x84

	if sign != 0 {
		return -sample
	}
	return sample
}

// MuLawToPCM decodes one mu-law byte into a linear sample.
func MuLawToPCM(b byte) int16 {
	return muLawToPCMTable[b]
}

// PCMToMuLaw encodes one linear sample.
func PCMToMuLaw(pcm int16) byte {
	const (
		bias = 0x84
		clip = 32635
	)

	sign := (pcm >> 8) & 0x80
	if pcm < 0 {
		if pcm == -32768 {
			pcm = -32767
		}
		pcm = -pcm
	}
	if pcm > clip {
		pcm = clip
	}
	pcm += bias

	exponent := 7
	for mask := 0x4000; (pcm&int16(mask)) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (pcm >> (exponent + 3)) & 0x0F

	return ^byte(sign | (int16(exponent) << 4) | mantissa)
}

// MuLaw8kToPCM16k decodes telephony audio and upsamples it by sample
// duplication to the 16 kHz PCM16 LE stream the provider expects.
func MuLaw8kToPCM16k(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*4)
	for i, b := range mulaw {
		v := uint16(muLawToPCMTable[b])
		binary.LittleEndian.PutUint16(out[i*4:], v)
		binary.LittleEndian.PutUint16(out[i*4+2:], v)
	}
	return out
}

// PCM24kToMuLaw8k decimates 24 kHz PCM16 LE audio to 8 kHz by keeping every
// third sample and encodes it as mu-law. A trailing odd byte is ignored.
func PCM24kToMuLaw8k(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, 0, samples/3+1)
	for i := 0; i < samples; i += 3 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out = append(out, PCMToMuLaw(sample))
	}
	return out
}
