// Package shipping contains the shipping label bounded context: the local
// projection of marketplace orders, the per-order label record that tracks
// carrier label download and print state, per-store calibration, and the
// derived artifacts produced for printing.
package shipping
