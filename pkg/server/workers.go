package server

import "context"

// workerGroup bounds how many requests are decoded and dispatched at once.
type workerGroup struct {
	slots chan struct{}
}

func newWorkerGroup(n int) *workerGroup {
	if n < 1 {
		n = 1
	}
	return &workerGroup{slots: make(chan struct{}, n)}
}

func (g *workerGroup) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *workerGroup) release() {
	<-g.slots
}

// inUse returns the number of held slots.
func (g *workerGroup) inUse() int {
	return len(g.slots)
}
