package export_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/resource"
)

func TestHeaderPackRoundTrips(t *testing.T) {
	header := export.PackHeader(export.ExportID(12345), export.SchemaResourceIndexOutOfBounds)
	id, schema := export.UnpackHeader(header)
	assert.EqualValues(t, 12345, id)
	assert.Equal(t, export.SchemaResourceIndexOutOfBounds, schema)
}

func TestRingClampsOverflowAndCountsOvershoot(t *testing.T) {
	ring := export.NewRing(4)
	pump := export.NewPump(ring)

	var delivered []export.Message
	pump.Register(1, export.ListenerFunc(func(m export.Message) {
		delivered = append(delivered, m)
	}))

	for i := 0; i < 10; i++ {
		ring.Append(export.Message{ExportID: 1, Schema: export.SchemaResourceIndexOutOfBounds, SGUID: uint32(i), Coordinate: export.Coordinate{X: uint32(i)}})
	}

	stats := pump.Drain()
	assert.Equal(t, uint32(4), stats.Decoded)
	assert.Equal(t, uint32(6), stats.LatentOvershoot)
	assert.EqualValues(t, 6, pump.LatentOvershoots())
}

func TestRingConcurrentAppendNoLostMessagesWithinLimit(t *testing.T) {
	ring := export.NewRing(64)
	pump := export.NewPump(ring)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ring.Append(export.Message{ExportID: 2, Schema: export.SchemaTexelInitialization, SGUID: uint32(i)})
		}(i)
	}
	wg.Wait()

	var count int
	pump.Register(2, export.ListenerFunc(func(m export.Message) { count++ }))
	stats := pump.Drain()
	assert.Equal(t, uint32(64), stats.Decoded)
	assert.Equal(t, 64, count)
}

func TestDedupMergesByFingerprint(t *testing.T) {
	ring := export.NewRing(16)
	pump := export.NewPump(ring)

	var delivered int
	pump.Register(3, export.ListenerFunc(func(m export.Message) { delivered++ }))

	msg := export.Message{ExportID: 3, Schema: export.SchemaResourceRaceCondition, SGUID: 7, Token: resource.Token{PUID: 42}}
	ring.Append(msg)
	ring.Append(msg)
	ring.Append(msg)

	pump.Drain()
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 3, pump.DedupStore().MergedCount(msg.Fingerprint()))
}

func TestMessageWireRoundTrip(t *testing.T) {
	msg := export.Message{
		ExportID:      9,
		Schema:        export.SchemaDescriptorMismatch,
		SGUID:         0xABCD,
		Token:         resource.Token{Type: resource.KindTexture, PUID: resource.PUID(99), FormatID: 7},
		Coordinate:    export.Coordinate{X: 1, Y: 2, Z: 3, Mip: 4},
		CompileType:   resource.KindTexture,
		RuntimeType:   resource.KindBuffer,
		IsUndefined:   false,
		IsOutOfBounds: false,
		Value:         3.5,
	}
	encoded := export.MarshalMessage(msg)
	decoded, err := export.UnmarshalMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg.ExportID, decoded.ExportID)
	assert.Equal(t, msg.Schema, decoded.Schema)
	assert.Equal(t, msg.SGUID, decoded.SGUID)
	assert.Equal(t, msg.Token, decoded.Token)
	assert.Equal(t, msg.Coordinate, decoded.Coordinate)
	assert.Equal(t, msg.CompileType, decoded.CompileType)
	assert.Equal(t, msg.RuntimeType, decoded.RuntimeType)
	assert.Equal(t, msg.Value, decoded.Value)
}
