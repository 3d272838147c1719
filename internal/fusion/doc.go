// Package fusion combines filtered marker geometry with smoothed motion
// samples into one PoseEstimate per tick.
//
// Marker pitch, yaw, roll and distance each pass through a scalar Kalman
// filter. Gravity-free acceleration passes through a 3-state vector filter.
// Inputs missing at a tick leave their estimates unchanged; consecutive
// ticks without a marker are counted and surfaced as Coasting and then
// Lost once the configured threshold is reached.
//
// Stability is derived from the pitch and distance filter variances:
//
//	stability = max(0, 100 - 100·var(pitch) - 50·var(distance))
package fusion
