package sensing

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultCapacity holds roughly 4.3ms of IQ at 15.36 MSPS, enough
	// for both the fast and the accurate estimation windows.
	DefaultCapacity = 65536

	// DefaultDecimationFactor admits every Nth batch delivered from the
	// main receive path, trading estimator freshness for CPU load.
	DefaultDecimationFactor = 8

	int16Scale = 1.0 / 32768.0
)

// Buffer is a bounded FIFO of complex IQ samples shared between a
// high-rate sample producer and the energy estimator. The producer side
// must never stall hardware I/O, so feeding uses a non-blocking lock
// acquisition: a contended batch is dropped in its entirety and counted
// rather than waited on. On overflow the oldest samples are evicted
// first, one eviction event per insert.
type Buffer struct {
	mu   sync.Mutex
	data []complex64 // ring storage
	head int
	size int

	received  atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64

	decimation atomic.Int64
	batchSeq   atomic.Int64
}

// NewBuffer creates a sample buffer with the given capacity.
// Returns an error if the capacity is not positive.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	b := &Buffer{data: make([]complex64, capacity)}
	b.decimation.Store(DefaultDecimationFactor)
	return b, nil
}

// Feed appends a batch of normalized complex float samples. It never
// blocks: if the buffer lock is contended the whole batch is dropped
// and the dropped counter increments by the batch size.
func (b *Buffer) Feed(iq []complex64) {
	if len(iq) == 0 {
		return
	}
	b.received.Add(uint64(len(iq)))

	if !b.mu.TryLock() {
		b.dropped.Add(uint64(len(iq)))
		return
	}
	defer b.mu.Unlock()
	b.insert(iq)
}

// FeedInterleavedInt16 appends interleaved fixed-point I/Q samples,
// scaling each component to [-1, 1) before insertion. The same
// non-blocking contract as Feed applies.
func (b *Buffer) FeedInterleavedInt16(pcm []int16) {
	n := len(pcm) / 2
	if n == 0 {
		return
	}
	iq := make([]complex64, n)
	for i := range iq {
		iq[i] = complex(float32(pcm[2*i])*int16Scale, float32(pcm[2*i+1])*int16Scale)
	}
	b.Feed(iq)
}

// FeedDecimated is the entry point for the main receive path: only
// every Nth delivered batch is processed, where N is the decimation
// factor. Skipped batches are not counted as received or dropped.
func (b *Buffer) FeedDecimated(iq []complex64) {
	if !b.admit() {
		return
	}
	b.Feed(iq)
}

// FeedDecimatedInt16 is FeedDecimated for interleaved fixed-point
// samples.
func (b *Buffer) FeedDecimatedInt16(pcm []int16) {
	if !b.admit() {
		return
	}
	b.FeedInterleavedInt16(pcm)
}

func (b *Buffer) admit() bool {
	seq := b.batchSeq.Add(1) - 1
	factor := b.decimation.Load()
	if factor <= 1 {
		return true
	}
	return seq%factor == 0
}

// SetDecimationFactor tunes the decimation policy at runtime. Factors
// below one disable decimation.
func (b *Buffer) SetDecimationFactor(factor int64) {
	b.decimation.Store(factor)
}

// DecimationFactor returns the current decimation factor.
func (b *Buffer) DecimationFactor() int64 {
	return b.decimation.Load()
}

// insert assumes the caller holds the lock.
func (b *Buffer) insert(iq []complex64) {
	capacity := len(b.data)

	if len(iq) >= capacity {
		// Batch larger than the ring: only the newest samples survive.
		copy(b.data, iq[len(iq)-capacity:])
		b.head = 0
		b.size = capacity
		b.overflows.Add(1)
		return
	}

	if b.size+len(iq) > capacity {
		evict := b.size + len(iq) - capacity
		b.head = (b.head + evict) % capacity
		b.size -= evict
		b.overflows.Add(1)
	}

	for _, s := range iq {
		b.data[(b.head+b.size)%capacity] = s
		b.size++
	}
}

// Size returns the current number of buffered samples.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the fixed capacity of the buffer.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Clear discards all buffered samples. Counters are unaffected.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.head = 0
	b.size = 0
	b.mu.Unlock()
}

// CopyLatest copies up to len(dst) of the most recent samples into dst,
// oldest first, blocking on the buffer lock. It returns the number of
// samples copied. Intended for calibration and accurate estimation
// paths where added latency is acceptable.
func (b *Buffer) CopyLatest(dst []complex64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLatest(dst)
}

// TryCopyLatest is CopyLatest with a non-blocking lock acquisition. The
// second return value is false when the lock was contended and nothing
// was copied.
func (b *Buffer) TryCopyLatest(dst []complex64) (int, bool) {
	if !b.mu.TryLock() {
		return 0, false
	}
	defer b.mu.Unlock()
	return b.copyLatest(dst), true
}

func (b *Buffer) copyLatest(dst []complex64) int {
	n := min(len(dst), b.size)
	start := b.head + b.size - n
	capacity := len(b.data)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(start+i)%capacity]
	}
	return n
}

// Counters returns the cumulative received, dropped and overflow
// counts. Safe to call concurrently with feeding; no lock is taken.
func (b *Buffer) Counters() (received, dropped, overflows uint64) {
	return b.received.Load(), b.dropped.Load(), b.overflows.Load()
}

// ResetCounters zeroes the received, dropped and overflow counters.
func (b *Buffer) ResetCounters() {
	b.received.Store(0)
	b.dropped.Store(0)
	b.overflows.Store(0)
}
