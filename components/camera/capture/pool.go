package capture

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/noegame/ROD/components/camera/driver"
)

// SlotState is the ownership state of a buffer slot.
type SlotState int

// A slot is always in exactly one of these states.
const (
	SlotIdle SlotState = iota
	SlotQueued
	SlotCompleted
	SlotConsumerHeld
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotQueued:
		return "queued"
	case SlotCompleted:
		return "completed"
	case SlotConsumerHeld:
		return "consumer_held"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

type slot struct {
	buf   driver.Buffer
	state SlotState
	req   *Request

	bytesUsed int
	seq       uint64
	timestamp time.Time
}

// PoolCounts is a snapshot of how many slots are in each state.
type PoolCounts struct {
	Capacity     int
	Idle         int
	Queued       int
	Completed    int
	ConsumerHeld int
}

// Total returns the number of slots accounted for, which always equals Capacity.
func (c PoolCounts) Total() int {
	return c.Idle + c.Queued + c.Completed + c.ConsumerHeld
}

// bufferPool is an indexed arena of slots. It is not safe for concurrent use; the manager's
// monitor lock guards it.
type bufferPool struct {
	slots  []slot
	counts [SlotConsumerHeld + 1]int
}

func newBufferPool(bufs []driver.Buffer, minSize int) (*bufferPool, error) {
	if len(bufs) == 0 {
		return nil, errors.Wrap(ErrAllocationFailure, "device reported zero buffers")
	}
	p := &bufferPool{slots: make([]slot, len(bufs))}
	for i, b := range bufs {
		if len(b.Data) < minSize {
			return nil, errors.Wrapf(ErrAllocationFailure, "buffer %d holds %d bytes, frames need %d", i, len(b.Data), minSize)
		}
		p.slots[i] = slot{buf: b, state: SlotIdle, req: newRequest(i)}
	}
	p.counts[SlotIdle] = len(bufs)
	return p, nil
}

func (p *bufferPool) capacity() int {
	return len(p.slots)
}

func (p *bufferPool) get(i int) (*slot, error) {
	if i < 0 || i >= len(p.slots) {
		return nil, errors.Errorf("slot %d out of range [0, %d)", i, len(p.slots))
	}
	return &p.slots[i], nil
}

func (p *bufferPool) move(i int, from, to SlotState) error {
	s, err := p.get(i)
	if err != nil {
		return err
	}
	if s.state != from {
		return errors.Errorf("slot %d is %s, expected %s", i, s.state, from)
	}
	s.state = to
	p.counts[from]--
	p.counts[to]++
	return nil
}

func (p *bufferPool) count(state SlotState) int {
	return p.counts[state]
}

func (p *bufferPool) snapshot() PoolCounts {
	return PoolCounts{
		Capacity:     len(p.slots),
		Idle:         p.counts[SlotIdle],
		Queued:       p.counts[SlotQueued],
		Completed:    p.counts[SlotCompleted],
		ConsumerHeld: p.counts[SlotConsumerHeld],
	}
}

// reset forces every slot back to Idle and releases its request.
func (p *bufferPool) reset() {
	for i := range p.slots {
		p.slots[i].state = SlotIdle
		p.slots[i].bytesUsed = 0
		if p.slots[i].req.state != RequestReleased {
			p.slots[i].req.state = RequestReleased
		}
	}
	p.counts = [SlotConsumerHeld + 1]int{}
	p.counts[SlotIdle] = len(p.slots)
}
