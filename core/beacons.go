package core

import "math"

// Beacons are the indicator-light intensities of the relay spacecraft and
// the adversary satellites. They are pure functions of simulated time so a
// renderer can apply them without its own clock.
type Beacons struct {
	// Relay is red nav, green nav, white strobe, blue status.
	Relay [4]float64 `json:"relay"`
	// Adversary is targeting, left warning, right warning, jamming.
	Adversary [4]float64 `json:"adversary"`
}

// BeaconsAt evaluates all beacon intensities at simTime.
func BeaconsAt(simTime float64) Beacons {
	lt := simTime * 2
	et := simTime * 3
	strobe := math.Sin(lt * 3)
	left := math.Sin(et * 2)
	right := math.Sin(et*2 + math.Pi)
	return Beacons{
		Relay: [4]float64{
			0.5 + 0.5*math.Sin(lt*0.5),
			0.5 + 0.5*math.Sin(lt*0.5+math.Pi),
			0.8 * strobe * strobe,
			0.3 + 0.2*math.Sin(lt*1.5),
		},
		Adversary: [4]float64{
			0.8 + 0.2*math.Sin(et*4),
			0.6 * left * left,
			0.6 * right * right,
			0.4 + 0.3*math.Sin(et*1.5),
		},
	}
}
