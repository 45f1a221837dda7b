package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds current system metrics snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process CPU usage, can exceed 100% on multi-core
	IOWaitPercent     float64 // CPU time waiting for I/O (high = I/O bound)
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	Tools             int     // Running gdalinfo/lasinfo/pdal children
	ToolsRSSGB        float64 // Resident memory of those children
	Timestamp         time.Time
}

// Collector periodically collects and logs system metrics
type Collector struct {
	interval      time.Duration
	logger        *zap.Logger
	proc          *process.Process
	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	lastCPUTimes  cpu.TimesStat
	hasCPUTimes   bool
	mu            sync.RWMutex
	lastMetrics   *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample initializes the disk and CPU baselines
	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// collect gathers current system metrics and logs them
func (c *Collector) collect(ctx context.Context) {
	metrics := &SystemMetrics{
		Timestamp: time.Now(),
	}

	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	if c.proc != nil {
		if procCPU, err := c.proc.PercentWithContext(ctx, 0); err == nil {
			metrics.ProcessCPUPercent = procCPU
		}
		metrics.Tools, metrics.ToolsRSSGB = c.children(ctx)
	}

	metrics.IOWaitPercent = c.calculateIOWait(ctx)

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		metrics.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	metrics.DiskReadMBps, metrics.DiskWriteMBps = c.calculateDiskRates(ctx)

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", round1(metrics.CPUPercent)),
		zap.Float64("proc_cpu", round1(metrics.ProcessCPUPercent)),
		zap.Float64("iowait", round1(metrics.IOWaitPercent)),
		zap.Float64("mem_pct", round1(metrics.MemoryPercent)),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", metrics.MemoryUsedGB)),
		zap.Int("tools", metrics.Tools),
		zap.String("tools_rss", fmt.Sprintf("%.1f GB", metrics.ToolsRSSGB)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", metrics.DiskReadMBps)),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", metrics.DiskWriteMBps)),
	)
}

// children counts the external tool processes spawned by this run
func (c *Collector) children(ctx context.Context) (int, float64) {
	kids, err := c.proc.ChildrenWithContext(ctx)
	if err != nil {
		return 0, 0
	}
	var rss uint64
	for _, k := range kids {
		if info, err := k.MemoryInfoWithContext(ctx); err == nil {
			rss += info.RSS
		}
	}
	return len(kids), float64(rss) / (1024 * 1024 * 1024)
}

// calculateIOWait calculates the I/O wait percentage from CPU times
func (c *Collector) calculateIOWait(ctx context.Context) float64 {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(times) == 0 {
		return 0
	}

	current := times[0]

	if !c.hasCPUTimes {
		c.lastCPUTimes = current
		c.hasCPUTimes = true
		return 0
	}

	last := c.lastCPUTimes
	totalDelta := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)

	iowaitDelta := current.Iowait - last.Iowait

	c.lastCPUTimes = current

	if totalDelta <= 0 {
		return 0
	}

	return (iowaitDelta / totalDelta) * 100
}

// calculateDiskRates calculates disk read/write rates since the last sample
func (c *Collector) calculateDiskRates(ctx context.Context) (readMBps, writeMBps float64) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return 0, 0
	}

	now := time.Now()
	defer func() {
		c.lastDiskStats = counters
		c.lastDiskTime = now
	}()

	if c.lastDiskStats == nil {
		return 0, 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, counter := range counters {
		last, ok := c.lastDiskStats[name]
		if !ok {
			continue
		}
		// Counters can wrap
		if counter.ReadBytes >= last.ReadBytes {
			readDelta += counter.ReadBytes - last.ReadBytes
		}
		if counter.WriteBytes >= last.WriteBytes {
			writeDelta += counter.WriteBytes - last.WriteBytes
		}
	}

	readMBps = float64(readDelta) / elapsed / (1024 * 1024)
	writeMBps = float64(writeDelta) / elapsed / (1024 * 1024)
	return readMBps, writeMBps
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
