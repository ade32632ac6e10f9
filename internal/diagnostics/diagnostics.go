// Package diagnostics reports host and process resources for the doctor
// command and the system API endpoint.
package diagnostics

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics holds system-wide usage. Fields stay zero when the platform
// does not report them.
type HostMetrics struct {
	CPUModel   string  `json:"cpu_model,omitempty"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`
}

// DiskMetrics describes the filesystem holding the session store.
type DiskMetrics struct {
	Path    string  `json:"path"`
	TotalGB float64 `json:"total_gb"`
	FreeGB  float64 `json:"free_gb"`
	Percent float64 `json:"used_percent"`
}

// ProcessMetrics comes from the Go runtime.
type ProcessMetrics struct {
	Goroutines  int           `json:"goroutines"`
	HeapAllocMB float64       `json:"heap_alloc_mb"`
	HeapInUseMB float64       `json:"heap_in_use_mb"`
	NumGC       uint32        `json:"num_gc"`
	Uptime      time.Duration `json:"uptime"`
	GoVersion   string        `json:"go_version"`
}

// Report is one collection pass.
type Report struct {
	Timestamp time.Time      `json:"timestamp"`
	Host      HostMetrics    `json:"host"`
	Disk      *DiskMetrics   `json:"disk,omitempty"`
	Process   ProcessMetrics `json:"process"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// Thresholds above which Collect adds a warning.
const (
	memWarnPercent  = 90
	diskWarnPercent = 95
)

// Collector gathers Reports. Use New.
type Collector struct {
	diskPath string
	started  time.Time
	now      func() time.Time

	mu       sync.Mutex
	infoDone bool
	cpuModel string
	cores    int
	threads  int
}

// New creates a collector that also reports the filesystem holding
// diskPath. An empty diskPath skips disk metrics.
func New(diskPath string) *Collector {
	return &Collector{diskPath: diskPath, started: time.Now(), now: time.Now}
}

// Collect gathers a report. Readings that fail are left zero.
func (c *Collector) Collect(ctx context.Context) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{Timestamp: c.now()}
	c.collectCPU(ctx, &r.Host)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		r.Host.MemTotalMB = float64(vm.Total) / 1024 / 1024
		r.Host.MemUsedMB = float64(vm.Used) / 1024 / 1024
		r.Host.MemPercent = vm.UsedPercent
		if vm.UsedPercent >= memWarnPercent {
			r.Warnings = append(r.Warnings, "system memory is above 90% used")
		}
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		r.Host.LoadAvg1, r.Host.LoadAvg5, r.Host.LoadAvg15 = avg.Load1, avg.Load5, avg.Load15
	}

	if c.diskPath != "" {
		if usage, err := disk.UsageWithContext(ctx, existingParent(c.diskPath)); err == nil {
			r.Disk = &DiskMetrics{
				Path:    c.diskPath,
				TotalGB: float64(usage.Total) / 1024 / 1024 / 1024,
				FreeGB:  float64(usage.Free) / 1024 / 1024 / 1024,
				Percent: usage.UsedPercent,
			}
			if usage.UsedPercent >= diskWarnPercent {
				r.Warnings = append(r.Warnings, "session store disk is above 95% used")
			}
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.Process = ProcessMetrics{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		HeapInUseMB: float64(ms.HeapInuse) / 1024 / 1024,
		NumGC:       ms.NumGC,
		Uptime:      c.now().Sub(c.started),
		GoVersion:   runtime.Version(),
	}
	return r
}

func (c *Collector) collectCPU(ctx context.Context, h *HostMetrics) {
	if !c.infoDone {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if n, err := cpu.CountsWithContext(ctx, false); err == nil {
			c.cores = n
		}
		if n, err := cpu.CountsWithContext(ctx, true); err == nil {
			c.threads = n
		}
		c.infoDone = true
	}
	h.CPUModel, h.CPUCores, h.CPUThreads = c.cpuModel, c.cores, c.threads

	// A zero interval compares against the previous call.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		h.CPUPercent = pct[0]
	}
}
