package report_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/report"
	"github.com/gpureshape/gpuvalidate/resource"
)

type fakeCommitSource struct {
	commit   uint64
	complete uint64
}

func (f *fakeCommitSource) CommitIndex() uint64     { return f.commit }
func (f *fakeCommitSource) CompleteCounter() uint64 { return f.complete }

func TestBeginReportWithoutWaitStaysCompilingUntilPushed(t *testing.T) {
	r := report.CreateReport(report.CreateInfo{})
	shader := &fakeCommitSource{commit: 3, complete: 0}

	r.BeginReport(nil, nil, shader, nil, report.BeginInfo{WaitForCompilation: false})
	status := r.GetReportStatus()
	assert.Equal(t, report.Compiling, status.State)
	assert.Equal(t, 3, status.PendingShaderCompilation)

	shader.complete = 3
	status = r.GetReportStatus()
	assert.Equal(t, report.Recording, status.State)
}

func TestEndReportReturnsToIdle(t *testing.T) {
	r := report.CreateReport(report.CreateInfo{})
	r.BeginReport(nil, nil, report.NoopCommitSource, report.NoopCommitSource, report.BeginInfo{})
	require.Equal(t, report.Recording, r.GetReportStatus().State)

	r.EndReport()
	assert.Equal(t, report.Idle, r.GetReportStatus().State)
}

func TestCollectExportsDedupsByFingerprintAndRespectsFilter(t *testing.T) {
	r := report.CreateReport(report.CreateInfo{})
	ring := export.NewRing(8)
	pump := export.NewPump(ring)
	r.Subscribe(pump, 1)

	r.BeginReport(pump, nil, report.NoopCommitSource, report.NoopCommitSource, report.BeginInfo{
		Filter: func(m export.Message) bool { return m.Schema == export.SchemaResourceRaceCondition },
	})

	ring.Append(export.Message{ExportID: 1, Schema: export.SchemaResourceRaceCondition, Token: resource.Token{PUID: 7}})
	ring.Append(export.Message{ExportID: 1, Schema: export.SchemaResourceRaceCondition, Token: resource.Token{PUID: 7}})
	ring.Append(export.Message{ExportID: 1, Schema: export.SchemaDescriptorMismatch, Token: resource.Token{PUID: 9}})

	r.FlushReport()
	status := r.GetReportStatus()
	assert.Equal(t, 1, status.FilteredMessages)
}

func TestExportReportCSVTracksBytes(t *testing.T) {
	r := report.CreateReport(report.CreateInfo{})
	ring := export.NewRing(8)
	pump := export.NewPump(ring)
	r.Subscribe(pump, 1)
	r.BeginReport(pump, nil, report.NoopCommitSource, report.NoopCommitSource, report.BeginInfo{})

	ring.Append(export.Message{ExportID: 1, Schema: export.SchemaTexelInitialization, Token: resource.Token{PUID: 42}})
	r.FlushReport()

	var buf bytes.Buffer
	require.NoError(t, r.ExportReport(&buf, report.ExportCSV))
	assert.Contains(t, buf.String(), "42")

	status := r.GetReportStatus()
	assert.Equal(t, uint64(buf.Len()), status.ExportedBytes)
}
