// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package thread

// readyQueue is the ready queue from spec.md §2/§4.1: an unordered
// collection of runnable threads from which the scheduler extracts the
// highest effective priority on each reschedule. Implemented as the
// 64-bucket priority array spec.md §9's Design Notes calls out as an
// O(1) alternative to an O(n) max-scan — chosen here because the
// scenario runner and workload DSL can run hundreds of threads at once.
//
// Ties within a bucket are broken by removal order (FIFO), matching
// spec.md §4.1's "ties are broken by removal order" rule.
type readyQueue struct {
	buckets [PriMax + 1][]*Thread
	count   int
}

func (q *readyQueue) push(t *Thread) {
	p := t.EffectivePriority()
	q.buckets[p] = append(q.buckets[p], t)
	q.count++
}

// popMax removes and returns the front thread of the highest non-empty
// bucket. A thread's bucket is its effective priority as of push or its
// latest reprioritize; popMax does not re-read priorities. Returns nil
// if empty.
func (q *readyQueue) popMax() *Thread {
	for p := len(q.buckets) - 1; p >= 0; p-- {
		bucket := q.buckets[p]
		if len(bucket) == 0 {
			continue
		}
		t := bucket[0]
		q.buckets[p] = bucket[1:]
		q.count--
		return t
	}
	return nil
}

// remove deletes t from the queue if present, used when a thread's
// priority changes while it is already enqueued (set_priority) so it can
// be re-pushed into the correct bucket. Returns whether t was found.
func (q *readyQueue) remove(t *Thread) bool {
	for p := range q.buckets {
		bucket := q.buckets[p]
		for i, o := range bucket {
			if o == t {
				q.buckets[p] = append(bucket[:i], bucket[i+1:]...)
				q.count--
				return true
			}
		}
	}
	return false
}

func (q *readyQueue) len() int { return q.count }

// reprioritize re-buckets t if it is currently enqueued, so a donation
// that raises t's effective priority while t sits READY (e.g. t was
// preempted while holding a contested lock) takes effect immediately
// rather than waiting for t's next full dispatch cycle.
func (q *readyQueue) reprioritize(t *Thread) {
	if q.remove(t) {
		q.push(t)
	}
}

func (q *readyQueue) forEach(f func(*Thread)) {
	for p := len(q.buckets) - 1; p >= 0; p-- {
		for _, t := range q.buckets[p] {
			f(t)
		}
	}
}
