package metrics

import (
	"context"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	portsMonitored atomic.Int64
	portsYielded   atomic.Int64
	bytesLogged    atomic.Int64
	hotplugEvents  atomic.Int64

	meter metric.Meter

	// Application metrics
	portsGauge     metric.Int64ObservableGauge
	yieldedGauge   metric.Int64ObservableGauge
	bytesCounter   metric.Int64ObservableCounter
	hotplugCounter metric.Int64ObservableCounter

	// Go runtime metrics
	goroutinesGauge   metric.Int64ObservableGauge
	memAllocGauge     metric.Int64ObservableGauge
	memSysGauge       metric.Int64ObservableGauge
	memHeapAllocGauge metric.Int64ObservableGauge
	gcNumGauge        metric.Int64ObservableGauge
	gcPauseTotalGauge metric.Int64ObservableGauge
	numCPUGauge       metric.Int64ObservableGauge
)

func Init() error {
	meter = otel.Meter("uartmon.metrics")

	// Application metrics
	var err error
	portsGauge, err = meter.Int64ObservableGauge(
		"uartmon.ports.monitored",
		metric.WithDescription("Number of serial ports in the port table"),
		metric.WithUnit("{ports}"),
	)
	if err != nil {
		return err
	}

	yieldedGauge, err = meter.Int64ObservableGauge(
		"uartmon.ports.yielded",
		metric.WithDescription("Number of ports currently yielded for flashing"),
		metric.WithUnit("{ports}"),
	)
	if err != nil {
		return err
	}

	bytesCounter, err = meter.Int64ObservableCounter(
		"uartmon.bytes.logged",
		metric.WithDescription("Cumulative serial bytes written to session logs"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	hotplugCounter, err = meter.Int64ObservableCounter(
		"uartmon.hotplug.events",
		metric.WithDescription("Cumulative hot-plug add/remove events handled"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return err
	}

	// Go runtime metrics
	goroutinesGauge, err = meter.Int64ObservableGauge(
		"go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutines}"),
	)
	if err != nil {
		return err
	}

	memAllocGauge, err = meter.Int64ObservableGauge(
		"go.memory.allocated",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	memSysGauge, err = meter.Int64ObservableGauge(
		"go.memory.sys",
		metric.WithDescription("Total bytes of memory obtained from the OS"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	memHeapAllocGauge, err = meter.Int64ObservableGauge(
		"go.memory.heap.allocated",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	gcNumGauge, err = meter.Int64ObservableGauge(
		"go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{cycles}"),
	)
	if err != nil {
		return err
	}

	gcPauseTotalGauge, err = meter.Int64ObservableGauge(
		"go.gc.pause_total_ns",
		metric.WithDescription("Cumulative nanoseconds in GC stop-the-world pauses"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return err
	}

	numCPUGauge, err = meter.Int64ObservableGauge(
		"go.cpu.count",
		metric.WithDescription("Number of logical CPUs"),
		metric.WithUnit("{cpus}"),
	)
	if err != nil {
		return err
	}

	// Register callback for all metrics
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			// Application metrics
			o.ObserveInt64(portsGauge, portsMonitored.Load())
			o.ObserveInt64(yieldedGauge, portsYielded.Load())
			o.ObserveInt64(bytesCounter, bytesLogged.Load())
			o.ObserveInt64(hotplugCounter, hotplugEvents.Load())

			// Runtime metrics
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			o.ObserveInt64(goroutinesGauge, int64(runtime.NumGoroutine()))
			o.ObserveInt64(memAllocGauge, int64(m.Alloc))
			o.ObserveInt64(memSysGauge, int64(m.Sys))
			o.ObserveInt64(memHeapAllocGauge, int64(m.HeapAlloc))
			o.ObserveInt64(gcNumGauge, int64(m.NumGC))
			o.ObserveInt64(gcPauseTotalGauge, int64(m.PauseTotalNs))
			o.ObserveInt64(numCPUGauge, int64(runtime.NumCPU()))

			return nil
		},
		portsGauge,
		yieldedGauge,
		bytesCounter,
		hotplugCounter,
		goroutinesGauge,
		memAllocGauge,
		memSysGauge,
		memHeapAllocGauge,
		gcNumGauge,
		gcPauseTotalGauge,
		numCPUGauge,
	)

	return err
}

func SetPortCounts(monitored, yielded int) {
	portsMonitored.Store(int64(monitored))
	portsYielded.Store(int64(yielded))
}

func AddBytesLogged(n int) {
	bytesLogged.Add(int64(n))
}

func CountHotplugEvent() {
	hotplugEvents.Add(1)
}
