package utils

import "fmt"

// Config sizes the network's stages and classifier. It is consumed once at
// network construction.
type Config struct {
	Conv1Channels int
	Conv2Channels int
	Conv3Channels int
	Conv4Channels int
	KernelSize    int
	FCUnits       int
}

// DefaultConfig returns the ZF2013 sizing: 96/256/384/384 channels, 7x7
// kernels, 1000 output classes.
func DefaultConfig() Config {
	return Config{
		Conv1Channels: 96,
		Conv2Channels: 256,
		Conv3Channels: 384,
		Conv4Channels: 384,
		KernelSize:    7,
		FCUnits:       1000,
	}
}

// Validate verifies the config describes a constructible network.
func (c Config) Validate() error {
	channels := [...]int{c.Conv1Channels, c.Conv2Channels, c.Conv3Channels, c.Conv4Channels}
	for i, ch := range channels {
		if ch <= 0 {
			return fmt.Errorf("conv%d_channels must be positive (got %d)", i+1, ch)
		}
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("kernel_size must be positive (got %d)", c.KernelSize)
	}
	if c.FCUnits <= 0 {
		return fmt.Errorf("fc_units must be positive (got %d)", c.FCUnits)
	}
	return nil
}
