// Package ringbuf provides a fixed-capacity byte ring buffer with blocking,
// timeout-bounded reads and writes.
//
// A Buffer has exactly one logical reader and one logical writer. Each side is
// serialized by its own lock, so a reader and a writer proceed concurrently and
// only meet on the cursor handshake. Every blocking call takes two timeouts:
//
//   - single bounds each individual wait for data or space;
//   - total bounds the whole call, across all of its waits.
//
// A negative timeout waits forever and zero never waits. A total of zero also
// forces the single timeout to zero, so a call with total == 0 only moves what
// is possible right now. When total is positive every wait is clamped to the
// remaining total budget, so a call returns within total plus scheduling noise
// regardless of single.
//
// Example usage:
//
//	buf := ringbuf.New(ringbuf.DefaultCapacity)
//	go func() {
//	    _, _ = buf.Write(ctx, []byte("hello\r\n"), -1, -1)
//	    buf.EOF()
//	}()
//	var line bytes.Buffer
//	err := buf.ReadLine(ctx, &line, time.Second, 5*time.Second)
package ringbuf
