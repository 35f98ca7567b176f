package scheduler

import (
	"github.com/gpureshape/gpuvalidate/resource"
	"github.com/gpureshape/gpuvalidate/texel"
)

// ZeroFill implements texel.TransferBuilder: it stages a ClearBuffer
// command covering the allocator's newly reserved region, riding the
// next ExclusiveTransfer submission (spec §4.4 "Initialize").
func (s *Scheduler) ZeroFill(baseWord, wordCount uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferStaging = append(s.transferStaging, ClearBuffer{BaseWord: baseWord, WordCount: wordCount})
}

// CommitTileMapping implements texel.TransferBuilder: it stages a
// StageBuffer write of puid's base word into the PUID-base table (spec
// §4.4 "UpdateResidency").
func (s *Scheduler) CommitTileMapping(puid resource.PUID, baseWord uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferStaging = append(s.transferStaging, StageBuffer{
		Offset: uint32(puid) * 4,
		Data:   []byte{byte(baseWord), byte(baseWord >> 8), byte(baseWord >> 16), byte(baseWord >> 24)},
	})
}

var _ texel.TransferBuilder = (*Scheduler)(nil)
