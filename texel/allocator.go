package texel

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gpureshape/gpuvalidate/resource"
)

// ErrOutOfMemory is returned when the mask buffer has no free tile
// large enough to satisfy an allocation.
var ErrOutOfMemory = errors.New("texel allocator: mask buffer exhausted")

// tileWords is the allocator's fixed tile granularity: allocations are
// rounded up to a whole number of tiles, per spec §4.4 "simple
// buddy-free-list over fixed-size tiles".
const tileWords = 64

// Allocation is the result of Allocate: a reservation in the shared
// mask buffer.
type Allocation struct {
	PUID          resource.PUID
	TexelBaseBlock uint32
	WordCount      uint32
}

// Allocator assigns per-resource regions in a single shared bit-mask
// buffer, maintaining the dense (PUID -> baseBlock) host table spec §4.4
// describes, and a buddy-style free list of tiles.
type Allocator struct {
	mu polyfillMutex

	totalWords uint32
	free       []tileRange // sorted, non-overlapping, free tile ranges
	base       map[resource.PUID]Allocation

	pendingStage []StageWrite
}

type tileRange struct {
	start, tiles uint32
}

// StageWrite is a pending write into the PUID-memory-base shader data
// buffer, consumed by the scheduler (C8) as a StageBuffer abstract
// command.
type StageWrite struct {
	PUID   resource.PUID
	Base   uint32
}

// polyfillMutex is an alias for sync.Mutex. An Allocator still needs
// NewAllocator: its zero value has no base map.
type polyfillMutex = sync.Mutex

// NewAllocator creates an Allocator over a mask buffer of totalWords
// 32-bit words.
func NewAllocator(totalWords uint32) *Allocator {
	a := &Allocator{
		totalWords: totalWords,
		base:       make(map[resource.PUID]Allocation),
	}
	if totalWords > 0 {
		a.free = []tileRange{{start: 0, tiles: totalWords / tileWords}}
	}
	return a
}

// Allocate reserves ceil(texelCount/32) words, rounded up to a whole
// tile, for resource puid.
func (a *Allocator) Allocate(puid resource.PUID, texelCount uint32) (Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	words := (texelCount + 31) / 32
	tiles := (words + tileWords - 1) / tileWords
	if tiles == 0 {
		tiles = 1
	}

	for i, r := range a.free {
		if r.tiles >= tiles {
			alloc := Allocation{PUID: puid, TexelBaseBlock: r.start * tileWords, WordCount: tiles * tileWords}
			if r.tiles == tiles {
				a.free = append(a.free[:i], a.free[i+1:]...)
			} else {
				a.free[i] = tileRange{start: r.start + tiles, tiles: r.tiles - tiles}
			}
			a.base[puid] = alloc
			a.pendingStage = append(a.pendingStage, StageWrite{PUID: puid, Base: alloc.TexelBaseBlock})
			return alloc, nil
		}
	}
	return Allocation{}, errors.Wrapf(ErrOutOfMemory, "requested %d tiles for puid %d", tiles, puid)
}

// Free returns alloc's words to the free list and merges adjacent
// free ranges (buddy coalescing).
func (a *Allocator) Free(puid resource.PUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alloc, ok := a.base[puid]
	if !ok {
		return
	}
	delete(a.base, puid)
	tiles := alloc.WordCount / tileWords
	start := alloc.TexelBaseBlock / tileWords

	a.free = append(a.free, tileRange{start: start, tiles: tiles})
	sortTileRanges(a.free)
	a.free = coalesce(a.free)
}

// BaseOf returns the base word index for puid, and NullOffset-style
// false if it has no live allocation.
func (a *Allocator) BaseOf(puid resource.PUID) (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alloc, ok := a.base[puid]
	return alloc.TexelBaseBlock, ok
}

// BaseWordOf adapts BaseOf to feature.TexelBases: callers outside this
// package address resources by the raw PUID word feature.Binding
// carries rather than the resource.PUID type itself, keeping package
// feature's dependency on the allocator to a single narrow method.
func (a *Allocator) BaseWordOf(puid uint32) (uint32, bool) {
	return a.BaseOf(resource.PUID(puid))
}

// DrainStageWrites returns and clears pending PUID-base writes,
// consumed by the scheduler to update the device-side base table.
func (a *Allocator) DrainStageWrites() []StageWrite {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.pendingStage
	a.pendingStage = nil
	return out
}

// TransferBuilder is the minimal surface the allocator needs from the
// command stream (C8) to emit its zero-fill and residency commands,
// without importing package scheduler (which itself may want to
// report texel allocations — keeping the dependency one-directional).
type TransferBuilder interface {
	ZeroFill(baseWord, wordCount uint32)
	CommitTileMapping(puid resource.PUID, baseWord uint32)
}

// Initialize emits a zero-fill of alloc's region on the exclusive
// transfer queue, per spec §4.4.
func (a *Allocator) Initialize(builder TransferBuilder, alloc Allocation) {
	builder.ZeroFill(alloc.TexelBaseBlock, alloc.WordCount)
}

// UpdateResidency commits pending sparse/tiled page-table mappings for
// every allocation with a drained stage write.
func (a *Allocator) UpdateResidency(builder TransferBuilder) {
	for _, w := range a.DrainStageWrites() {
		builder.CommitTileMapping(w.PUID, w.Base)
	}
}

func sortTileRanges(ranges []tileRange) {
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j-1].start > ranges[j].start; j-- {
			ranges[j-1], ranges[j] = ranges[j], ranges[j-1]
		}
	}
}

func coalesce(ranges []tileRange) []tileRange {
	if len(ranges) == 0 {
		return ranges
	}
	out := []tileRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if last.start+last.tiles == r.start {
			last.tiles += r.tiles
		} else {
			out = append(out, r)
		}
	}
	return out
}
