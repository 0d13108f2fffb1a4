package node

// Watcher keeps descriptors in the readiness set. ConnectionRegistry mirrors every entry it holds
// into a Watcher, so the two never disagree.
type Watcher interface {
	Watch(fd int) error
	Unwatch(fd int) error
}

// Waker interrupts a blocked readiness wait. It must be safe to call from any goroutine.
type Waker interface {
	Wake() error
}
