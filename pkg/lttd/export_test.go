package lttd

// Rescan walks the channel tree again, as after a hot-plug event overflow
func (s *Session[T]) Rescan() {
	newScanner(s).scan()
}
