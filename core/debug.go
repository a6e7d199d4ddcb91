package core

import "sync"

// DebugWriter receives one trace line at a time.
type DebugWriter func(string)

// NewAsyncWriter returns a DebugWriter that queues lines for w on a
// background goroutine. Lines are dropped while the queue is full so a slow
// trace link never stalls command handling. The returned stop function
// drains the queue and ends the goroutine.
func NewAsyncWriter(w DebugWriter, depth int) (DebugWriter, func()) {
	if depth <= 0 {
		depth = 16
	}
	lines := make(chan string, depth)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range lines {
			w(msg)
		}
	}()

	var mu sync.Mutex
	stopped := false
	write := func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case lines <- msg:
		default:
		}
	}
	stop := func() {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		stopped = true
		close(lines)
		mu.Unlock()
		<-done
	}
	return write, stop
}
