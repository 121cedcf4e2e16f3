// Package snowflake issues time-ordered 63-bit ids: milliseconds since the
// epoch, then the node number, then a per-millisecond sequence.
package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// 2024-01-01 00:00:00 UTC
	Epoch int64 = 1704067200000
)

type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	return newNode(node, time.Now)
}

func newNode(node int64, now func() time.Time) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, fmt.Errorf("node number must be between 0 and %d", nodeMax)
	}
	return &Node{node: node, now: now}, nil
}

func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms < n.last {
		// Clock went backwards; keep counting from the last timestamp.
		ms = n.last
	}

	if ms == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for ms <= n.last {
				ms = n.now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.last = ms

	return ((ms - Epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// String returns the next id in decimal, the form the chat wire uses.
func (n *Node) String() string {
	return strconv.FormatInt(n.Generate(), 10)
}

// Time recovers the millisecond an id was generated in.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch)
}
