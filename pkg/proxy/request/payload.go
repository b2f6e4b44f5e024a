package request

import "sync/atomic"

// Payload is the raw inbound request body, owned by exactly one request.
//
// The transport hands ownership of the buffer to the request; Release
// gives it back exactly once, however many paths race to call it.
type Payload struct {
	data      []byte
	onRelease func([]byte)
	released  atomic.Bool
}

// NewPayload wraps data. onRelease, if non-nil, runs once when the payload
// is released and receives the buffer so the transport can recycle it.
func NewPayload(data []byte, onRelease func([]byte)) *Payload {
	return &Payload{data: data, onRelease: onRelease}
}

// Bytes returns the payload. The slice must not be used after Release.
func (p *Payload) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.data)
}

// Release hands the buffer back. It reports true only for the call that
// actually released it; later calls are no-ops.
func (p *Payload) Release() bool {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return false
	}
	if p.onRelease != nil {
		p.onRelease(p.data)
	}
	return true
}

// Released reports whether Release has run.
func (p *Payload) Released() bool {
	return p != nil && p.released.Load()
}
