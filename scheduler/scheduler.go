package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
)

// Submission is one recorded batch of abstract commands against a
// queue, reusable once its fence has signaled (spec §4.8 "SyncPoint
// reclaims completed submissions into a free list").
type Submission struct {
	Queue    Queue
	Commands []Command

	mu     sync.Mutex
	event  *Primitive
	target uint64
	done   bool
}

// MarkComplete signals the submission's fence (if any) and marks it
// reclaimable. A real backend calls this from its fence-completion
// callback; tests/demo code call it directly to simulate the device
// finishing the submission.
func (s *Submission) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.event != nil {
		s.event.Signal()
	}
}

// Done reports whether the submission has completed.
func (s *Submission) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Scheduler is the C8 command-stream scheduler: per-queue pending and
// free submission lists, gated by a semaphore for bounded admission
// into the submission path (spec §5.1).
type Scheduler struct {
	admission *semaphore.Weighted

	mu      sync.Mutex
	pending map[Queue][]*Submission
	free    []*Submission

	// transferStaging accumulates ZeroFill/CommitTileMapping commands
	// (texel.TransferBuilder) between Schedule(ExclusiveTransfer, ...)
	// calls, so the texel allocator's initialization/residency work
	// rides the next exclusive-transfer submission instead of needing
	// its own queue plumbing (spec §4.4/§4.8, §5 ordering: "the
	// initialization blit for a freshly bound resource is scheduled on
	// ExclusiveTransfer before any Graphics/Compute submission that
	// reads it").
	transferStaging []Command
}

// NewScheduler creates a Scheduler admitting at most submissionLimit
// concurrent Schedule calls (pipelineCompilerWorkerCount-equivalent
// throttle for the submission path, spec §5.1).
func NewScheduler(submissionLimit int) *Scheduler {
	if submissionLimit < 1 {
		submissionLimit = 1
	}
	return &Scheduler{
		admission: semaphore.NewWeighted(int64(submissionLimit)),
		pending:   make(map[Queue][]*Submission),
	}
}

// Schedule records commands against queue, returning the Submission a
// caller can later mark complete. If event is non-nil, completing the
// submission signals it. ExclusiveTransfer submissions are prefixed
// with whatever ZeroFill/CommitTileMapping commands have staged since
// the last ExclusiveTransfer submission, preserving initialization
// ordering even though the caller doesn't see the allocator's commands
// directly.
func (s *Scheduler) Schedule(ctx context.Context, queue Queue, commands []Command, event *Primitive) (*Submission, error) {
	if err := s.admission.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.admission.Release(1)

	s.mu.Lock()
	var merged []Command
	if queue == ExclusiveTransfer && len(s.transferStaging) > 0 {
		merged = append(merged, s.transferStaging...)
		s.transferStaging = nil
	}
	merged = append(merged, commands...)
	sub := s.acquireFreeLocked(queue)
	sub.Commands = append(sub.Commands[:0], merged...)
	sub.event = event
	if event != nil {
		sub.target = event.Value() + 1
	}
	s.pending[queue] = append(s.pending[queue], sub)
	s.mu.Unlock()

	return sub, nil
}

func (s *Scheduler) acquireFreeLocked(queue Queue) *Submission {
	if n := len(s.free); n > 0 {
		sub := s.free[n-1]
		s.free = s.free[:n-1]
		sub.mu.Lock()
		sub.done = false
		sub.Queue = queue
		sub.mu.Unlock()
		return sub
	}
	return &Submission{Queue: queue}
}

// SyncPoint moves every completed submission (Done() == true, across
// every queue) from pending into the free list, returning how many
// were reclaimed (spec §4.8, testable property 13).
func (s *Scheduler) SyncPoint() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for q, subs := range s.pending {
		var still []*Submission
		for _, sub := range subs {
			if sub.Done() {
				s.free = append(s.free, sub)
				reclaimed++
			} else {
				still = append(still, sub)
			}
		}
		s.pending[q] = still
	}
	return reclaimed
}

// Pending returns the number of not-yet-reclaimed submissions on queue.
func (s *Scheduler) Pending(queue Queue) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[queue])
}

// TileMapping is one sparse-residency binding MapTiles commits: puid's
// tile range, at baseWord, lands in the given heap.
type TileMapping struct {
	Heap     uint32
	BaseWord uint32
	PUID     resource.PUID
}

// MapTiles batches mappings by heap and issues one StageBuffer command
// per mapping on queue (conventionally ExclusiveTransfer), per spec
// §4.8 "batches sparse-bind requests by heap before submitting".
func (s *Scheduler) MapTiles(ctx context.Context, queue Queue, shaderData ir.ID, mappings []TileMapping) (*Submission, error) {
	byHeap := make(map[uint32][]TileMapping)
	for _, m := range mappings {
		byHeap[m.Heap] = append(byHeap[m.Heap], m)
	}
	var cmds []Command
	for heap, ms := range byHeap {
		for _, m := range ms {
			cmds = append(cmds, StageBuffer{Dest: shaderData, Offset: m.BaseWord, Data: encodePUID(heap, m.PUID)})
		}
	}
	return s.Schedule(ctx, queue, cmds, nil)
}

func encodePUID(heap uint32, puid resource.PUID) []byte {
	return []byte{byte(heap), byte(puid), byte(puid >> 8), byte(puid >> 16)}
}
