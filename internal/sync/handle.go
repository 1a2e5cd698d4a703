package sync

// PlaybackHandle is one independently playing media track: the primary screen
// capture or the secondary audio. Implementations must not call back into the
// Controller synchronously from these methods; progress is reported through
// the Controller's OnPrimaryProgress/OnSecondaryProgress listeners instead.
type PlaybackHandle interface {
	// Seek moves the track to the given native media position.
	Seek(seconds float64)
	// Play starts playback. It may be rejected by host policy (autoplay);
	// the controller treats that as recoverable and retries.
	Play() error
	// Pause stops playback, keeping position.
	Pause()
	// SetRate sets the playback-rate multiplier (1 = native).
	SetRate(rate float64)
	// Position reports the current native media position.
	Position() float64
	// Duration reports the track's native duration, 0 when unknown.
	Duration() float64
	// Paused reports whether the track is currently paused.
	Paused() bool
}
