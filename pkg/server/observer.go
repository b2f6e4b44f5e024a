package server

// Observer receives connection lifecycle events. *metrics.Collector
// satisfies it.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	IdleClosed()
	RequestRejected(reason string)
}

// Rejection reasons reported to the Observer.
const (
	RejectTooLarge       = "too_large"
	RejectHeaderTooLarge = "header_too_large"
	RejectMalformed      = "malformed"
	RejectTimeout        = "timeout"
)

type nopObserver struct{}

func (nopObserver) ConnectionOpened()      {}
func (nopObserver) ConnectionClosed()      {}
func (nopObserver) IdleClosed()            {}
func (nopObserver) RequestRejected(string) {}
