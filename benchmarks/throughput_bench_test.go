// Package benchmarks provides performance benchmarks for event throughput.
package benchmarks

import (
	"context"
	"sync"
	"testing"

	"github.com/comalice/commando/internal/primitives"
)

var directions = []primitives.Direction{primitives.Forward, primitives.Left, primitives.Right}

func BenchmarkEventThroughput(b *testing.B) {
	_, mb, act := LaunchMachine(b, 256)
	ctx := context.Background()

	numWorkers := 8
	perWorker := b.N / numWorkers
	if perWorker == 0 {
		perWorker = 1
	}

	var wg sync.WaitGroup
	b.ResetTimer()
	b.ReportAllocs()
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				msg := VelocityMessage(directions[(w+i)%len(directions)], i%100)
				if err := mb.Send(ctx, msg); err != nil {
					b.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	total := int64(numWorkers * perWorker)
	WaitApplied(b, act, total)
	b.ReportMetric(float64(total)/b.Elapsed().Seconds(), "requests/sec")
}

func BenchmarkEventThroughput_SingleProducer(b *testing.B) {
	_, mb, act := LaunchMachine(b, 16)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := mb.Send(ctx, VelocityMessage(primitives.Forward, i%100)); err != nil {
			b.Fatal(err)
		}
	}
	WaitApplied(b, act, int64(b.N))
	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "requests/sec")
}

// BenchmarkRequestLatency measures one request from Send to wheel command.
func BenchmarkRequestLatency(b *testing.B) {
	_, mb, act := LaunchMachine(b, 1)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := mb.Send(ctx, VelocityMessage(primitives.Left, i%100)); err != nil {
			b.Fatal(err)
		}
		WaitApplied(b, act, int64(i+1))
	}
}
