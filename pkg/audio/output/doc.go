// ABOUTME: Audio output package for playing rendered audio
// ABOUTME: Provides Output interface with oto and headless implementations
// Package output provides audio playback backends.
//
// Backends pull interleaved float32 PCM from an io.Reader, which is how the
// tone engine's render path is driven:
//
//	out := output.NewOto()
//	err := out.Open(audio.Format{SampleRate: 48000, Channels: 2})
//	err = out.Play(engine)
//
// Null pulls on a ticker without a device, for headless runs and tests.
package output
