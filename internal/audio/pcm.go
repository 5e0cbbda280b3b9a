package audio

// BytesToSamples converts little-endian PCM-16 bytes to samples. A trailing
// odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	numSamples := len(data) / 2
	samples := make([]int16, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts PCM-16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// DurationSeconds returns the play time of raw mono PCM-16 bytes.
func DurationSeconds(data []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(data)/2) / float64(sampleRate)
}
