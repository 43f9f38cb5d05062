// Package priority is the two-level queue between the transport and the
// pipeline: control frames (barge-in, cancel) ride the high lane so they
// preempt buffered audio.
package priority

import (
	"sync/atomic"
	"time"
)

type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
}

type Queue interface {
	TryPushHigh(f any) bool
	TryPushLow(f any) bool
	Pop() (any, bool)
	Stats() Stats
}

type PriorityQueue struct {
	high     chan any
	low      chan any
	fairness int

	// consecutive high-lane pops since the low lane was last served
	highRun int

	highPush atomic.Int64
	lowPush  atomic.Int64
	highPop  atomic.Int64
	lowPop   atomic.Int64
}

func New(highCap, lowCap, fairness int) *PriorityQueue {
	if highCap <= 0 {
		highCap = 64
	}
	if lowCap <= 0 {
		lowCap = 256
	}
	if fairness <= 0 {
		fairness = 3
	}
	return &PriorityQueue{
		high:     make(chan any, highCap),
		low:      make(chan any, lowCap),
		fairness: fairness,
	}
}

func (q *PriorityQueue) TryPushHigh(f any) bool {
	select {
	case q.high <- f:
		q.highPush.Add(1)
		return true
	default:
		return false
	}
}

func (q *PriorityQueue) TryPushLow(f any) bool {
	select {
	case q.low <- f:
		q.lowPush.Add(1)
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available. High wins, except that after
// `fairness` consecutive high pops one low item is served so audio cannot
// starve behind a control storm.
func (q *PriorityQueue) Pop() (any, bool) {
	for {
		if q.highRun >= q.fairness {
			if f, ok := q.tryLow(); ok {
				return f, true
			}
		}
		if f, ok := q.tryHigh(); ok {
			return f, true
		}
		if f, ok := q.tryLow(); ok {
			return f, true
		}
		time.Sleep(time.Millisecond)
	}
}

func (q *PriorityQueue) tryHigh() (any, bool) {
	select {
	case f := <-q.high:
		q.highPop.Add(1)
		q.highRun++
		return f, true
	default:
		return nil, false
	}
}

func (q *PriorityQueue) tryLow() (any, bool) {
	select {
	case f := <-q.low:
		q.lowPop.Add(1)
		q.highRun = 0
		return f, true
	default:
		return nil, false
	}
}

func (q *PriorityQueue) Stats() Stats {
	return Stats{
		HighPush: q.highPush.Load(),
		LowPush:  q.lowPush.Load(),
		HighPop:  q.highPop.Load(),
		LowPop:   q.lowPop.Load(),
	}
}
