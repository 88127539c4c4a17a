package enrich

import (
	"context"
	"log"
)

// TargetKind distinguishes what an enrichment target refers to.
type TargetKind int

const (
	TargetMovie TargetKind = iota
	TargetSeries
)

// Target references a catalog entry awaiting metadata. Targets carry the
// lookup query by value so the worker never shares memory with the catalog.
type Target struct {
	Kind       TargetKind
	MovieID    int
	SeriesName string
	Candidates []string
	Year       string
}

// Queue is a bounded FIFO hand-off between the scanner and the enrichment
// worker. Enqueue never blocks; a full queue drops the item and a later
// rescan will re-enqueue anything still missing metadata.
type Queue struct {
	ch chan Target
}

// NewQueue creates a queue holding at most size pending targets.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan Target, size)}
}

// Enqueue adds a target unless the queue is full.
func (q *Queue) Enqueue(t Target) bool {
	select {
	case q.ch <- t:
		return true
	default:
		log.Printf("[enrich] queue full, dropping target %q", t.describe())
		return false
	}
}

// Dequeue blocks until a target is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Target, error) {
	select {
	case t := <-q.ch:
		return t, nil
	case <-ctx.Done():
		return Target{}, ctx.Err()
	}
}

// Len reports the number of pending targets.
func (q *Queue) Len() int {
	return len(q.ch)
}

func (t Target) describe() string {
	if t.Kind == TargetSeries {
		return t.SeriesName
	}
	if len(t.Candidates) > 0 {
		return t.Candidates[0]
	}
	return "unknown"
}
