package control

// ComputeAcceleration is the open-loop speed gate: full acceleration below
// threshold, none at or above it. Deceleration is left to the vehicle.
func ComputeAcceleration(currentSpeed, threshold float64) float64 {
	if currentSpeed < threshold {
		return 1
	}
	return 0
}
