package main

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// =============================================================================
// Health and status
// =============================================================================

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// status reports process and host vitals plus cache occupancy. Unauthenticated
// on purpose: it carries no tenant data.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	body := map[string]interface{}{
		"status":         "ok",
		"version":        version,
		"environment":    h.cfg.Environment,
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"process": map[string]interface{}{
			"heap_alloc_bytes": ms.HeapAlloc,
			"gc_cycles":        ms.NumGC,
		},
		"caches": map[string]interface{}{
			"users":       h.users.Len(),
			"store_lists": h.lists.Len(),
		},
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		body["host_memory"] = map[string]interface{}{
			"total_bytes": vm.Total,
			"used_pct":    vm.UsedPercent,
		}
	}
	if up, err := host.Uptime(); err == nil {
		body["host_uptime_seconds"] = up
	}

	writeJSON(w, http.StatusOK, body)
}
