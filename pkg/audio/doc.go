// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and level/sample conversion functions
// Package audio provides the fundamental audio types shared by the tone engine
// and the output backends.
//
// Levels are expressed in dBFS, where 0 dBFS is digital full scale and
// SilenceDbfs (-80) or below is treated as silence:
//
//	amp := audio.DbfsToAmplitude(-20) // 0.1
//
// Rendered streams are interleaved float32 little-endian PCM.
package audio
