package media

import "math"

// EnergyVAD is a lightweight voice-activity detector over PCM frames.
// It maps frame RMS energy onto a 0..1 probability and compares it to an
// activation threshold. Heavier model-based detectors live behind the
// same Process signature.
type EnergyVAD struct {
	// ActivationThreshold is the probability above which a frame counts
	// as speech.
	ActivationThreshold float64

	// noise tracks an exponential estimate of the noise floor so the
	// detector adapts to line hum on phone audio.
	noise float64
}

const (
	defaultActivation = 0.6
	noiseAdaptRate    = 0.05
)

func NewEnergyVAD(activationThreshold float64) *EnergyVAD {
	if activationThreshold <= 0 || activationThreshold >= 1 {
		activationThreshold = defaultActivation
	}
	return &EnergyVAD{ActivationThreshold: activationThreshold}
}

// Process scores one frame. Returns the speech probability and whether
// it crosses the activation threshold.
func (v *EnergyVAD) Process(f Frame) (float64, bool) {
	if len(f.PCM) == 0 {
		return 0, false
	}

	var sum float64
	for _, s := range f.PCM {
		fs := float64(s) / math.MaxInt16
		sum += fs * fs
	}
	rms := math.Sqrt(sum / float64(len(f.PCM)))

	if v.noise == 0 {
		v.noise = rms
	} else if rms < v.noise {
		v.noise += noiseAdaptRate * (rms - v.noise)
	}

	// Ratio above the noise floor, squashed into 0..1. A frame ~10x the
	// floor saturates toward 1.
	floor := v.noise
	if floor < 1e-4 {
		floor = 1e-4
	}
	ratio := rms / floor
	prob := 1 - math.Exp(-(ratio-1)/4)
	if prob < 0 {
		prob = 0
	}

	return prob, prob >= v.ActivationThreshold
}
