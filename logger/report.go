package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type streamStat struct {
	messages int64
	bytes    int64
}

var (
	errorsTicker int64
	errorsDepth  int64
	warnsTicker  int64
	warnsDepth   int64
	tickerReads  int64
	depthReads   int64
	reconnects   int64
	streams      sync.Map // map[string]*streamStat
)

func recordWarn(component string) {
	if strings.Contains(component, "depth") {
		atomic.AddInt64(&warnsDepth, 1)
	} else if strings.Contains(component, "ticker") {
		atomic.AddInt64(&warnsTicker, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "depth") {
		atomic.AddInt64(&errorsDepth, 1)
	} else if strings.Contains(component, "ticker") {
		atomic.AddInt64(&errorsTicker, 1)
	}
}

// IncrementTickerRead counts one message from the aggregate ticker stream.
func IncrementTickerRead(size int) {
	atomic.AddInt64(&tickerReads, 1)
	recordStream("ticker_ws", size)
}

// IncrementDepthRead counts one message from the depth stream.
func IncrementDepthRead(size int) {
	atomic.AddInt64(&depthReads, 1)
	recordStream("depth_ws", size)
}

// IncrementReconnect counts one scheduled reconnect of the ticker stream.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func recordStream(name string, size int) {
	v, _ := streams.LoadOrStore(name, &streamStat{})
	st := v.(*streamStat)
	atomic.AddInt64(&st.messages, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// StartReport logs a runtime report every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func reportFields() Fields {
	streamData := map[string]map[string]int64{}
	streams.Range(func(k, v any) bool {
		st := v.(*streamStat)
		streamData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&st.messages),
			"bytes":    atomic.LoadInt64(&st.bytes),
		}
		return true
	})

	return Fields{
		"errors_ticker": atomic.LoadInt64(&errorsTicker),
		"errors_depth":  atomic.LoadInt64(&errorsDepth),
		"warns_ticker":  atomic.LoadInt64(&warnsTicker),
		"warns_depth":   atomic.LoadInt64(&warnsDepth),
		"ticker_reads":  atomic.LoadInt64(&tickerReads),
		"depth_reads":   atomic.LoadInt64(&depthReads),
		"reconnects":    atomic.LoadInt64(&reconnects),
		"goroutines":    runtime.NumGoroutine(),
		"streams":       streamData,
	}
}

func logReport(ctx context.Context, log *Log) {
	fields := reportFields()

	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / 1024 / 1024
	}
	fields["cpu_percent"] = cpuPct
	fields["memory_mb"] = int64(memMB)

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	count := func(name string, key string) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(fields[key].(int64))),
		}
	}
	publishMetrics(ctx, []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		count("TickerReads", "ticker_reads"),
		count("DepthReads", "depth_reads"),
		count("Reconnects", "reconnects"),
		count("ErrorsTicker", "errors_ticker"),
		count("ErrorsDepth", "errors_depth"),
	})
}
