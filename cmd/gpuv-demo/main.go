// Command gpuv-demo exercises the validation layer's full host-API
// surface end to end against one synthetic shader: compile it through
// the C7 worker pool, schedule its resource initialization on the C8
// scheduler, export a deliberately duplicated diagnostic through the
// C6 ring, and collect/print/export a C9 report over the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gpureshape/gpuvalidate/compiler"
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
	"github.com/gpureshape/gpuvalidate/internal/device"
	"github.com/gpureshape/gpuvalidate/internal/gpulog"
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/irprovider/textir"
	"github.com/gpureshape/gpuvalidate/report"
	"github.com/gpureshape/gpuvalidate/resource"
	"github.com/gpureshape/gpuvalidate/scheduler"
)

func main() {
	format := flag.String("export", "csv", "report export format: csv or html")
	workers := flag.Int("workers", 2, "shader compiler worker count")
	flag.Parse()

	logger := gpulog.Default
	provider := textir.New()

	dev := device.New(device.Config{
		ShaderCompilerWorkerCount:   *workers,
		PipelineCompilerWorkerCount: 4,
		TexelMaskBufferWords:        1 << 16,
		ExportRingCapacity:          64,
		Logger:                      logger,
	}, provider)
	defer dev.Close()

	rep := report.CreateReport(report.CreateInfo{ShaderCompilerWorkerCount: *workers})
	for id := export.ExportID(1); id < 8; id++ {
		rep.Subscribe(dev.Pump, id)
	}
	rep.BeginReport(dev.Pump, provider, dev.Pool, report.NoopCommitSource, report.BeginInfo{
		Features:           feature.BitResourceInitialization | feature.BitResourceDataRace,
		WaitForCompilation: true,
	})

	shaderSource, puid := demoShader(provider)

	initAlloc, err := dev.Allocator.Allocate(puid, 256)
	if err != nil {
		fmt.Fprintln(os.Stderr, "allocate:", err)
		os.Exit(1)
	}
	if _, err := dev.Scheduler.Schedule(context.Background(), scheduler.ExclusiveTransfer, nil, nil); err != nil {
		fmt.Fprintln(os.Stderr, "schedule init transfer:", err)
		os.Exit(1)
	}
	logger.Logf(gpulog.Info, "allocated puid=%d base=%d words=%d", puid, initAlloc.TexelBaseBlock, initAlloc.WordCount)

	job := compiler.NewJob(compiler.NewShaderState(shaderSource), compiler.InstrumentationKey{
		Mask: feature.BitResourceInitialization | feature.BitResourceDataRace,
		Bindings: map[ir.ID]feature.Binding{
			1: {ExpectedKind: resource.KindBuffer, PUID: puid},
		},
	}, dev.Ring, dev.Allocator)
	dev.Pool.Submit(job)

	bytecode, err := job.Wait()
	if err != nil {
		fmt.Fprintln(os.Stderr, "compile:", err)
		os.Exit(1)
	}
	logger.Logf(gpulog.Info, "compiled %d bytes, cache size=%d", len(bytecode), dev.Cache.Len())

	// Simulate the shader exporting the same fingerprint twice: only
	// the first dispatch reaches the report's filtered store, the
	// second merges into it (spec §4.6 dedup).
	msg := export.Message{ExportID: 1, Schema: export.SchemaResourceRaceCondition, Token: resource.Token{PUID: puid}}
	dev.Ring.Append(msg)
	dev.Ring.Append(msg)
	rep.FlushReport()

	status := rep.GetReportStatus()
	logger.Logf(gpulog.Info, "report status=%s filtered=%d", status.State, status.FilteredMessages)

	if err := rep.PrintReport(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "print report:", err)
		os.Exit(1)
	}
	if err := rep.PrintSummary(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "print summary:", err)
		os.Exit(1)
	}

	exportFormat := report.ExportCSV
	if *format == "html" {
		exportFormat = report.ExportHTML
	}
	out, err := os.Create(fmt.Sprintf("gpuv-report.%s", *format))
	if err != nil {
		fmt.Fprintln(os.Stderr, "create export file:", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := rep.ExportReport(out, exportFormat); err != nil {
		fmt.Fprintln(os.Stderr, "export report:", err)
		os.Exit(1)
	}

	summary := rep.EndReport()
	logger.Logf(gpulog.Info, "ended report after %s, %d messages, %d bytes exported",
		summary.Elapsed.Round(time.Millisecond), summary.FilteredMessages, summary.ExportedBytes)
}

// demoShader builds a minimal textir-encoded program: a buffer-typed
// global token bound to puid, loaded once and returned. It stands in
// for a real shader's compiled bytecode for this demo binary.
func demoShader(provider *textir.Provider) ([]byte, resource.PUID) {
	prog := ir.NewProgram()
	u32 := prog.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32})
	sig := prog.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: u32})
	token := prog.AddGlobal(u32, "resourceToken")

	fn := prog.NewFunction(sig)
	fn.Flags = ir.FunctionEntryPoint
	blk := fn.AppendBlock()
	loaded := prog.AllocID()
	blk.Append(ir.Instruction{OpCode: ir.OpLoad, Result: loaded, Type: u32, Operands: []ir.ID{token.ID}})
	blk.Append(ir.Instruction{OpCode: ir.OpReturn, Operands: []ir.ID{loaded}})
	fn.IndexUsers()

	source, err := provider.Stitch(prog)
	if err != nil {
		panic(err)
	}
	return source, resource.PUID(7)
}
