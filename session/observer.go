package session

// Observer is notified about session activity. Implementations must be goroutine-safe,
// since every session calls it from its own goroutines.
type Observer interface {
	SessionStarted()
	SessionEnded(final State)
	SpawnFailed()
	InputEvent()
	OutputEvent()
}

type nopObserver struct{}

func (nopObserver) SessionStarted()    {}
func (nopObserver) SessionEnded(State) {}
func (nopObserver) SpawnFailed()       {}
func (nopObserver) InputEvent()        {}
func (nopObserver) OutputEvent()       {}
