package core

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    float64          `json:"uptime"` // seconds
	Memory    MemoryStatus     `json:"memory"`
	Recados   int              `json:"recados"`
	RateLimit *RateLimitTotals `json:"rateLimit,omitempty"`
}

// MemoryStatus mixes Go runtime figures with host figures from /proc/meminfo.
type MemoryStatus struct {
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	HeapInUseBytes uint64 `json:"heap_in_use_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGoroutine   int    `json:"num_goroutine"`
	HostUsedBytes  uint64 `json:"host_used_bytes"`
	HostTotalBytes uint64 `json:"host_total_bytes"`
}

// CollectHealth is best-effort: a failing collaborator leaves its field zero.
func CollectHealth(ctx context.Context, repo RecadoRepository, stats RateLimitStats, startedAt time.Time) HealthStatus {
	st := HealthStatus{Status: "ok", Timestamp: time.Now().UTC()}
	if !startedAt.IsZero() {
		st.Uptime = time.Since(startedAt).Seconds()
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.Memory.HeapAllocBytes = ms.HeapAlloc
	st.Memory.HeapInUseBytes = ms.HeapInuse
	st.Memory.SysBytes = ms.Sys
	st.Memory.NumGoroutine = runtime.NumGoroutine()
	st.Memory.HostUsedBytes, st.Memory.HostTotalBytes = readMemInfo()

	if repo != nil {
		if n, err := repo.Count(ctx); err == nil {
			st.Recados = n
		}
	}
	if r, ok := stats.(RateLimitTotalsReader); ok {
		if t, err := r.Totals(ctx); err == nil {
			st.RateLimit = &t
		}
	}
	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotal = parseKiBLine(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal == 0 {
		return 0, 0
	}
	if memAvailable <= memTotal {
		used = memTotal - memAvailable
	}
	return used * 1024, memTotal * 1024
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
