// Package kalman provides the recursive estimators used by the sensor
// fusion pipeline.
//
// Scalar is a one-variable filter used independently for the work angle,
// yaw, roll and working distance. Vector is a small fixed-dimension linear
// filter used to smooth the 3-axis motion signal. Both are owned by exactly
// one fusion pipeline and are not safe for concurrent use.
package kalman
