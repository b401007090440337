package coroutine

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// DummyCoroutine stands in for a handle when cooperative execution is
// disabled. It never runs anything.
type DummyCoroutine struct{}

// NewDummy returns a DummyCoroutine.
func NewDummy() *DummyCoroutine {
	return &DummyCoroutine{}
}

// Start always fails with ErrDummy.
func (*DummyCoroutine) Start() error {
	return ErrDummy
}

// Stop does nothing.
func (*DummyCoroutine) Stop() {}

// Pull always reports ErrDummy.
func (*DummyCoroutine) Pull() error {
	return ErrDummy
}

// Interrupt does nothing.
func (*DummyCoroutine) Interrupt() {}

// CID is always 0.
func (*DummyCoroutine) CID() int {
	return 0
}

// Done is always closed.
func (*DummyCoroutine) Done() <-chan struct{} {
	return closedDone
}
