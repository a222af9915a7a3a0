package config

// WindowSamples returns the analysis window length in samples at the internal rate.
func (c *Config) WindowSamples() int {
	return int(c.Analysis.WindowSeconds * float64(c.Capture.SampleRate))
}

// HopSamples returns the hop length in samples at the internal rate.
func (c *Config) HopSamples() int {
	return int(c.Analysis.Hop.Seconds() * float64(c.Capture.SampleRate))
}

// RingCapacity returns the ring buffer capacity in samples.
func (c *Config) RingCapacity() int {
	return int(c.Capture.RingSeconds * float64(c.Capture.SampleRate))
}
