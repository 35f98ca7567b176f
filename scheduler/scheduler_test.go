package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/resource"
	"github.com/gpureshape/gpuvalidate/scheduler"
)

func TestScheduleThenSyncPointReclaimsExactlyOnce(t *testing.T) {
	s := scheduler.NewScheduler(4)
	event := s.CreatePrimitive()

	sub, err := s.Schedule(context.Background(), scheduler.Graphics, []scheduler.Command{
		scheduler.Dispatch{GroupX: 1, GroupY: 1, GroupZ: 1},
	}, event)
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, 1, s.Pending(scheduler.Graphics))
	assert.Equal(t, 0, s.SyncPoint()) // not yet complete

	sub.MarkComplete()
	assert.Equal(t, 1, s.SyncPoint())
	assert.Equal(t, 0, s.Pending(scheduler.Graphics))
	assert.Equal(t, 0, s.SyncPoint()) // already reclaimed, no double-count

	assert.True(t, event.Reached(1))
}

func TestZeroFillRidesNextExclusiveTransferSubmission(t *testing.T) {
	s := scheduler.NewScheduler(4)

	s.ZeroFill(0, 64)
	s.CommitTileMapping(resource.PUID(5), 0)

	sub, err := s.Schedule(context.Background(), scheduler.ExclusiveTransfer, nil, nil)
	require.NoError(t, err)
	require.Len(t, sub.Commands, 2)
	_, isClear := sub.Commands[0].(scheduler.ClearBuffer)
	assert.True(t, isClear)
	_, isStage := sub.Commands[1].(scheduler.StageBuffer)
	assert.True(t, isStage)

	// A later, unrelated transfer submission carries none of the
	// already-consumed staged commands.
	sub2, err := s.Schedule(context.Background(), scheduler.ExclusiveTransfer, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sub2.Commands)
}

func TestMapTilesBatchesByHeap(t *testing.T) {
	s := scheduler.NewScheduler(4)
	sub, err := s.MapTiles(context.Background(), scheduler.ExclusiveTransfer, 0, []scheduler.TileMapping{
		{Heap: 0, BaseWord: 0, PUID: 1},
		{Heap: 1, BaseWord: 64, PUID: 2},
	})
	require.NoError(t, err)
	assert.Len(t, sub.Commands, 2)
}

func TestReconstructReopensSuspendedRenderPassWithoutMutatingCaller(t *testing.T) {
	state := &scheduler.PipelineState{
		BoundPipeline: 7,
		RootConstants: []byte{1, 2, 3},
		ActiveRenderPass: &scheduler.RenderPass{
			ID:     9,
			LoadOp: scheduler.LoadOpClear,
		},
	}
	cmds := scheduler.Reconstruct(state)
	require.Len(t, cmds, 3)
	_, ok := cmds[0].(scheduler.SetShaderProgram)
	assert.True(t, ok)

	// Reconstruct must not mutate the caller's RenderPass LoadOp.
	assert.Equal(t, scheduler.LoadOpClear, state.ActiveRenderPass.LoadOp)
}
