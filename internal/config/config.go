// Package config describes capture-device sample geometry. A LineConfig
// tells the deconvolver how a scanline's VBI region was digitized: how
// many samples per line, at what rate, where the clock run-in may start,
// and how to undo the capture chain's gain. Profiles are immutable and
// registered by name at init; everything downstream shares them read-only.
package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownProfile is returned by Lookup for names not in the registry.
var ErrUnknownProfile = errors.New("config: unknown device profile")

// ThresholdMode selects how the slicer converts soft bits to hard bits.
type ThresholdMode int

const (
	// ThresholdFixed slices at 0.5.
	ThresholdFixed ThresholdMode = iota
	// ThresholdAdaptive slices at the median soft-bit value of the line,
	// which tracks low-contrast tapes where the eye is not centred.
	ThresholdAdaptive
)

// LineConfig is the static description of one capture device's VBI
// sampling. It is built once from a profile and never mutated.
type LineConfig struct {
	// Name of the profile this config was built from.
	Name string

	// SamplesPerLine is the length of one raw VBI frame in bytes.
	SamplesPerLine int

	// SampleRate is the capture ADC rate in Hz.
	SampleRate float64

	// BitRate is the teletext bit rate in Hz (6.9375 MHz for PAL WST).
	BitRate float64

	// CRIWindowStart and CRIWindowEnd bound the sample offsets searched
	// for the start of the clock run-in.
	CRIWindowStart int
	CRIWindowEnd   int

	// BlackWindow is the number of leading samples used to estimate the
	// black level. These samples precede the clock run-in.
	BlackWindow int

	// GainCurve holds polynomial coefficients (constant term first)
	// applied to each normalized sample. An empty slice means identity.
	GainCurve []float64

	// Kernel is the symmetric deconvolution kernel applied to the soft
	// bit sequence. Must have odd length and sum close to 1.
	Kernel []float64

	// RejectRatio is the minimum peak-to-sidelobe correlation ratio for
	// a line to be considered present.
	RejectRatio float64

	// Threshold selects fixed or adaptive slicing.
	Threshold ThresholdMode
}

// BitWidth returns the nominal number of samples per transmitted bit.
func (c *LineConfig) BitWidth() float64 {
	return c.SampleRate / c.BitRate
}

// Validate checks internal consistency of a profile. Registered profiles
// are validated at init; overridden ones are validated again at use.
func (c *LineConfig) Validate() error {
	if c.SamplesPerLine <= 0 {
		return fmt.Errorf("config: profile %q: samples per line must be positive", c.Name)
	}
	if c.SampleRate <= 0 || c.BitRate <= 0 {
		return fmt.Errorf("config: profile %q: sample rate and bit rate must be positive", c.Name)
	}
	if c.CRIWindowStart < 0 || c.CRIWindowEnd <= c.CRIWindowStart {
		return fmt.Errorf("config: profile %q: bad CRI window [%d,%d)", c.Name, c.CRIWindowStart, c.CRIWindowEnd)
	}
	// The window must leave room for the full line: 24 run-in bits plus
	// 336 data bits from the latest possible start.
	need := int(math.Ceil(float64(c.CRIWindowEnd) + 360*c.BitWidth()))
	if need > c.SamplesPerLine {
		return fmt.Errorf("config: profile %q: line of %d samples cannot hold teletext data starting at %d",
			c.Name, c.SamplesPerLine, c.CRIWindowEnd)
	}
	if len(c.Kernel)%2 == 0 {
		return fmt.Errorf("config: profile %q: kernel length must be odd", c.Name)
	}
	if c.RejectRatio <= 1 {
		return fmt.Errorf("config: profile %q: reject ratio must exceed 1", c.Name)
	}
	return nil
}

// Gain applies the profile's gain curve to a normalized sample.
func (c *LineConfig) Gain(v float64) float64 {
	if len(c.GainCurve) == 0 {
		return v
	}
	out, pow := 0.0, 1.0
	for _, coeff := range c.GainCurve {
		out += coeff * pow
		pow *= v
	}
	return out
}

// Override carries optional per-run adjustments to a named profile,
// mirroring the capture-card flags on the command line. Zero values mean
// "keep the profile's setting".
type Override struct {
	SamplesPerLine int
	SampleRate     float64
	CRIWindowStart int
	CRIWindowEnd   int
}

// sharpen is the default deconvolution kernel: a short symmetric
// high-boost filter that undoes the tape chain's low-pass smear. The
// coefficients sum to 1 so flat regions pass through unchanged.
var sharpen = []float64{-0.05, -0.18, 1.46, -0.18, -0.05}

var registry = map[string]*LineConfig{
	"bt8x8_pal": {
		Name:           "bt8x8_pal",
		SamplesPerLine: 2048,
		SampleRate:     35468950,
		BitRate:        6937500,
		CRIWindowStart: 70,
		CRIWindowEnd:   145,
		BlackWindow:    64,
		Kernel:         sharpen,
		RejectRatio:    3.0,
		Threshold:      ThresholdFixed,
	},
	"bt8x8_ntsc": {
		Name:           "bt8x8_ntsc",
		SamplesPerLine: 2048,
		SampleRate:     28636363,
		BitRate:        5727272,
		CRIWindowStart: 70,
		CRIWindowEnd:   145,
		BlackWindow:    64,
		Kernel:         sharpen,
		RejectRatio:    3.0,
		Threshold:      ThresholdFixed,
	},
	"cx88_pal": {
		Name:           "cx88_pal",
		SamplesPerLine: 2048,
		SampleRate:     35468950,
		BitRate:        6937500,
		CRIWindowStart: 64,
		CRIWindowEnd:   160,
		BlackWindow:    56,
		Kernel:         sharpen,
		RejectRatio:    3.0,
		Threshold:      ThresholdFixed,
	},
	"saa7134_pal": {
		Name:           "saa7134_pal",
		SamplesPerLine: 1600,
		SampleRate:     27000000,
		BitRate:        6937500,
		CRIWindowStart: 24,
		CRIWindowEnd:   96,
		BlackWindow:    20,
		Kernel:         sharpen,
		RejectRatio:    3.0,
		Threshold:      ThresholdAdaptive,
	},
}

// Lookup returns the named profile with overrides applied. The returned
// config is a private copy; the registry entry is never mutated.
func Lookup(name string, ov Override) (*LineConfig, error) {
	base, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	c := *base
	c.GainCurve = append([]float64(nil), base.GainCurve...)
	c.Kernel = append([]float64(nil), base.Kernel...)
	if ov.SamplesPerLine > 0 {
		c.SamplesPerLine = ov.SamplesPerLine
	}
	if ov.SampleRate > 0 {
		c.SampleRate = ov.SampleRate
	}
	if ov.CRIWindowStart > 0 || ov.CRIWindowEnd > 0 {
		c.CRIWindowStart = ov.CRIWindowStart
		c.CRIWindowEnd = ov.CRIWindowEnd
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Profiles returns the registered profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	for _, c := range registry {
		if err := c.Validate(); err != nil {
			panic(err)
		}
	}
}
