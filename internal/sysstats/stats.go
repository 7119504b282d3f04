// Package sysstats collects the process and host figures that show up in
// the bridge's periodic stats line.
package sysstats

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a point-in-time resource snapshot. Collection is best-effort:
// fields stay zero when the platform probe fails.
type Stats struct {
	ProcessRSS      uint64  `json:"process_rss"`
	HostUsedPercent float64 `json:"host_used_percent"`
	Uptime          string  `json:"uptime"`
}

var startTime = time.Now()

// Collect retrieves the current snapshot.
func Collect() *Stats {
	stats := &Stats{
		Uptime: formatUptime(time.Since(startTime)),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			stats.ProcessRSS = info.RSS
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostUsedPercent = vm.UsedPercent
	}

	return stats
}

// formatUptime formats duration into human-readable uptime
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
