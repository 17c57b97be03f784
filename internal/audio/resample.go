package audio

import (
	"fmt"
	"math"
)

// TargetRate is the sample rate inference engines expect.
const TargetRate = 16000

const (
	zeroCrossings = 16
	rolloff       = 0.95
)

// Resample converts interleaved samples at inRate with inChannels into
// outRate with outChannels. Channels are averaged to mono first; mono is
// copied to every output channel when outChannels > 1.
//
// Interpolation uses a Blackman-windowed sinc low-passed at 0.95 of the lower
// Nyquist frequency. The function is pure: the same input always yields the
// same output.
func Resample(samples []float32, inRate, inChannels, outRate, outChannels int) ([]float32, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", inRate, outRate)
	}
	if inChannels <= 0 || outChannels <= 0 {
		return nil, fmt.Errorf("invalid channel counts: %d -> %d", inChannels, outChannels)
	}
	if len(samples)%inChannels != 0 {
		return nil, fmt.Errorf("%d samples is not a whole number of %d-channel frames", len(samples), inChannels)
	}

	mono := Downmix(samples, inChannels)
	var out []float32
	if inRate == outRate {
		out = make([]float32, len(mono))
		copy(out, mono)
	} else {
		out = sincResample(mono, inRate, outRate)
	}

	if outChannels == 1 {
		return out, nil
	}
	wide := make([]float32, len(out)*outChannels)
	for i, s := range out {
		for c := 0; c < outChannels; c++ {
			wide[i*outChannels+c] = s
		}
	}
	return wide, nil
}

// ToTarget resamples to 16kHz mono.
func ToTarget(samples []float32, inRate, inChannels int) ([]float32, error) {
	return Resample(samples, inRate, inChannels, TargetRate, 1)
}

func sincResample(in []float32, inRate, outRate int) []float32 {
	if len(in) == 0 {
		return []float32{}
	}

	ratio := float64(outRate) / float64(inRate)
	cutoff := rolloff
	if ratio < 1 {
		cutoff *= ratio
	}
	// half width of the kernel, in input samples
	halfWidth := float64(zeroCrossings) / cutoff

	n := int(math.Round(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / ratio
		lo := int(math.Ceil(t - halfWidth))
		hi := int(math.Floor(t + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > len(in)-1 {
			hi = len(in) - 1
		}

		var sum, weights float64
		for j := lo; j <= hi; j++ {
			d := t - float64(j)
			w := cutoff * sinc(cutoff*d) * blackman(d, halfWidth)
			sum += float64(in[j]) * w
			weights += w
		}
		if weights != 0 {
			sum /= weights
		}
		out[i] = float32(sum)
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates a Blackman window centred on zero over [-half, half].
func blackman(x, half float64) float64 {
	if math.Abs(x) > half {
		return 0
	}
	p := math.Pi * x / half
	return 0.42 + 0.5*math.Cos(p) + 0.08*math.Cos(2*p)
}
