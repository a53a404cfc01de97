package kafkaq

import "sync"

// offsetTracker computes, per partition, the highest offset below which every
// fetched message is done. Acks may arrive in any order.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	pending []int64
	done    map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// track registers a fetched offset. Offsets of one partition arrive ascending.
func (t *offsetTracker) track(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.partitions[partition] = p
	}
	p.pending = append(p.pending, offset)
}

// complete marks offset done and returns the new contiguous watermark, if it moved.
func (t *offsetTracker) complete(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[partition]
	if !ok {
		return 0, false
	}
	p.done[offset] = true

	var watermark int64
	moved := false
	for len(p.pending) > 0 && p.done[p.pending[0]] {
		watermark = p.pending[0]
		delete(p.done, watermark)
		p.pending = p.pending[1:]
		moved = true
	}
	return watermark, moved
}
