package ffmpegtransform

import (
	"container/heap"
	"time"
)

// sampleInfo is what the raw output loses and the transform restores.
type sampleInfo struct {
	time     time.Duration
	duration time.Duration
	keyframe bool
}

// ptsQueue hands out input timestamps in presentation order, which is the
// order ffmpeg emits pictures in.
type ptsQueue []sampleInfo

func (q ptsQueue) Len() int            { return len(q) }
func (q ptsQueue) Less(i, j int) bool  { return q[i].time < q[j].time }
func (q ptsQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *ptsQueue) Push(x interface{}) { *q = append(*q, x.(sampleInfo)) }

func (q *ptsQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

func (q *ptsQueue) push(s sampleInfo) {
	heap.Push(q, s)
}

func (q *ptsQueue) pop() (sampleInfo, bool) {
	if q.Len() == 0 {
		return sampleInfo{}, false
	}
	return heap.Pop(q).(sampleInfo), true
}
