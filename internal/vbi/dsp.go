package vbi

import (
	"math"
	"sort"

	"github.com/example/teledec/internal/config"
)

// runIn is the clock run-in and framing code as transmitted: sixteen
// alternating bits followed by 0x27 LSB first.
var runIn = [24]float64{
	1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0,
	1, 1, 1, 0, 0, 1, 0, 0,
}

// dataBits is the payload length in bits: 42 bytes after the framing
// code.
const dataBits = 42 * 8

// percentile returns the p-th percentile (0..1) of buf without
// modifying it. Used for robust black/white level estimation; a spike
// on the tape moves a percentile far less than it moves the mean.
func percentile(buf []byte, p float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	sorted := make([]byte, len(buf))
	copy(sorted, buf)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return float64(sorted[idx])
}

// gaussianKernel returns normalized Gaussian weights covering ±2σ.
func gaussianKernel(sigma float64) []float64 {
	half := int(math.Ceil(2 * sigma))
	k := make([]float64, 2*half+1)
	sum := 0.0
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// smooth convolves src with kernel k (odd length), clamping at the
// edges, and writes the result into dst. dst and src must not alias.
func smooth(dst, src []float64, k []float64) {
	half := len(k) / 2
	for i := range src {
		acc := 0.0
		for j, w := range k {
			idx := i + j - half
			if idx < 0 {
				idx = 0
			} else if idx >= len(src) {
				idx = len(src) - 1
			}
			acc += w * src[idx]
		}
		dst[i] = acc
	}
}

// dsp holds the precomputed per-profile state shared by both backends.
// It is immutable after newDSP and safe for concurrent use.
type dsp struct {
	cfg      *config.LineConfig
	bitWidth float64
	template []float64 // idealized run-in at sample rate, zero-mean
	sigma    float64   // per-bit integration width
	intgHalf int       // half-width of the integration window in samples
}

func newDSP(cfg *config.LineConfig) *dsp {
	bw := cfg.BitWidth()
	d := &dsp{
		cfg:      cfg,
		bitWidth: bw,
		sigma:    bw / 4,
	}
	d.intgHalf = int(math.Ceil(2 * d.sigma))

	// Render the run-in at the sample rate and smear it the way the
	// channel does, so correlation compares like with like.
	n := int(math.Ceil(float64(len(runIn)) * bw))
	tmpl := make([]float64, n)
	for i := range tmpl {
		tmpl[i] = runIn[int(float64(i)/bw)]
	}
	smeared := make([]float64, n)
	smooth(smeared, tmpl, gaussianKernel(d.sigma))
	for i := range smeared {
		smeared[i] -= 0.5
	}
	d.template = smeared
	return d
}

// normalize rescales raw samples so logic-low sits near 0 and
// logic-high near 1, using robust black/white estimates and the
// profile's gain curve.
func (d *dsp) normalize(samples []byte, out []float64) {
	black := percentile(samples[:d.cfg.BlackWindow], 0.2)

	// White reference comes from the run-in region, which is half
	// high bits regardless of payload.
	hi := d.cfg.CRIWindowEnd + int(float64(len(runIn))*d.bitWidth)
	if hi > len(samples) {
		hi = len(samples)
	}
	white := percentile(samples[d.cfg.CRIWindowStart:hi], 0.9)
	span := white - black
	if span < 1 {
		span = 1
	}

	for i, s := range samples {
		v := (float64(s) - black) / span
		if v < 0 {
			v = 0
		} else if v > 1.25 {
			v = 1.25
		}
		out[i] = d.cfg.Gain(v)
	}
}

// locate cross-correlates the normalized line against the run-in
// template across the profile's search window. It returns the sample
// offset of bit 0 and whether the peak-to-sidelobe ratio clears the
// profile's rejection threshold.
func (d *dsp) locate(norm []float64) (offset int, ok bool) {
	start, end := d.cfg.CRIWindowStart, d.cfg.CRIWindowEnd
	if end+len(d.template) > len(norm) {
		end = len(norm) - len(d.template)
	}
	if end <= start {
		return 0, false
	}

	scores := make([]float64, end-start)
	best, bestOff := math.Inf(-1), start
	for off := start; off < end; off++ {
		score := 0.0
		for i, tv := range d.template {
			score += tv * (norm[off+i] - 0.5)
		}
		scores[off-start] = score
		if score > best {
			best = score
			bestOff = off
		}
	}

	if best <= 0 {
		return 0, false
	}

	// Sidelobe level: mean magnitude away from the peak. The run-in is
	// periodic, so offsets within a couple of bit periods of the peak
	// correlate strongly and must not count as sidelobe floor.
	guard := 2.5 * d.bitWidth
	sum, count := 0.0, 0
	for off := start; off < end; off++ {
		if math.Abs(float64(off-bestOff)) <= guard {
			continue
		}
		sum += math.Abs(scores[off-start])
		count++
	}
	if count == 0 {
		return 0, false
	}
	sidelobe := sum / float64(count)
	if sidelobe > 0 && best/sidelobe < d.cfg.RejectRatio {
		return 0, false
	}
	return bestOff, true
}

// integrate resamples the payload region into 336 soft bits by
// Gaussian-weighted integration around each ideal bit center.
func (d *dsp) integrate(norm []float64, offset int, soft []float64) {
	for bit := 0; bit < dataBits; bit++ {
		center := float64(offset) + (float64(len(runIn)+bit)+0.5)*d.bitWidth
		lo := int(center) - d.intgHalf
		hi := int(center) + d.intgHalf
		acc, wsum := 0.0, 0.0
		for idx := lo; idx <= hi; idx++ {
			if idx < 0 || idx >= len(norm) {
				continue
			}
			x := float64(idx) - center
			w := math.Exp(-x * x / (2 * d.sigma * d.sigma))
			acc += w * norm[idx]
			wsum += w
		}
		if wsum > 0 {
			soft[bit] = acc / wsum
		} else {
			soft[bit] = 0.5
		}
	}
}

// sharpen applies the profile's deconvolution kernel to the soft bit
// sequence, undoing inter-bit smear, and clamps the result to [0,1].
func (d *dsp) sharpen(soft, scratch []float64) {
	smooth(scratch, soft, d.cfg.Kernel)
	for i, v := range scratch {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		soft[i] = v
	}
}

// threshold returns the slicing level for a line of soft bits.
func (d *dsp) threshold(soft []float64) float64 {
	if d.cfg.Threshold == config.ThresholdFixed {
		return 0.5
	}
	sorted := make([]float64, len(soft))
	copy(sorted, soft)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
