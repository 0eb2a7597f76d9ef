package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"obskit/internal/domain"
)

type samplerState struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastCPU float64
	lastAt  time.Time
	hasCPU  bool
}

// StartSampler records system metrics every interval until StopSampler is
// called or ctx is done. Starting a running sampler is a no-op.
func (c *Collector) StartSampler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = domain.DefaultSampleInterval
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.sampler.mu.Lock()
	defer c.sampler.mu.Unlock()
	if c.sampler.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.sampler.cancel = cancel
	c.sampler.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.SampleSystem()
			}
		}
	}()
}

// StopSampler stops the sampler and waits for its goroutine to exit.
func (c *Collector) StopSampler() {
	c.sampler.mu.Lock()
	cancel, done := c.sampler.cancel, c.sampler.done
	c.sampler.cancel = nil
	c.sampler.done = nil
	c.sampler.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Collector) SamplerRunning() bool {
	c.sampler.mu.Lock()
	defer c.sampler.mu.Unlock()
	return c.sampler.cancel != nil
}

// SampleSystem records one round of process metrics tagged type=system. The
// CPU metrics are the CPU time consumed since the previous sample and its share
// of the elapsed wall time.
func (c *Collector) SampleSystem() {
	tags := map[string]string{domain.MetricTagType: domain.SystemMetricTag}

	c.Record("system_memory_heap_used", float64(c.heap()), domain.UnitBytes, tags, "")
	if c.stats != nil {
		if rss, err := c.stats.RSSBytes(); err == nil {
			c.Record("system_memory_rss", float64(rss), domain.UnitBytes, tags, "")
		}
		if cpu, err := c.stats.CPUSeconds(); err == nil {
			now := c.now()
			c.sampler.mu.Lock()
			delta, percent, hasPercent := 0.0, 0.0, false
			if c.sampler.hasCPU && cpu >= c.sampler.lastCPU {
				delta = cpu - c.sampler.lastCPU
				if wall := now.Sub(c.sampler.lastAt).Seconds(); wall > 0 {
					percent, hasPercent = delta/wall*100, true
				}
			}
			c.sampler.lastCPU = cpu
			c.sampler.lastAt = now
			c.sampler.hasCPU = true
			c.sampler.mu.Unlock()
			c.Record("system_cpu_time", delta*1000, domain.UnitMilliseconds, tags, "")
			if hasPercent {
				c.Record("system_cpu_percent", percent, domain.UnitPercent, tags, "")
			}
		}
	}
	c.Record("system_uptime", c.now().Sub(c.started).Seconds(), domain.UnitSeconds, tags, "")
	c.Record("system_goroutines", float64(runtime.NumGoroutine()), domain.UnitCount, tags, "")
}
