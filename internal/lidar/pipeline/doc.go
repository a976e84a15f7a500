// Package pipeline runs the one-shot conversion from a packed point file to
// an MCAP log holding a single point cloud message.
//
// The input is decoded in full before the destination is touched, so a
// missing or malformed input never leaves an output file behind. Once the
// destination exists, any later failure closes and removes it.
package pipeline
