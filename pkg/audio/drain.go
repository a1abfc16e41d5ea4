package audio

// Drain reads from ch until it closes, discarding every value. Use it when a
// consumer stops early but the producer only stops on channel close, so the
// producing goroutine never blocks on a full buffer.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
