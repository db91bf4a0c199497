package ui

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceStats holds host resource usage
type ResourceStats struct {
	CPUPercent  float64
	MemoryUsed  uint64
	MemoryTotal uint64
	MemPercent  float64
	CPUTemp     float64 // Celsius, -1 if unavailable
}

// ProcessStats is the combined usage of a preview's process tree
type ProcessStats struct {
	Processes  int
	CPUPercent float64
	RSS        uint64
}

// GetResourceStats samples host CPU, memory and temperature
func GetResourceStats() ResourceStats {
	stats := ResourceStats{CPUTemp: -1}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsed = vm.Used
		stats.MemoryTotal = vm.Total
		stats.MemPercent = vm.UsedPercent
	}
	stats.CPUTemp = cpuTemperature()
	return stats
}

// GetProcessStats sums CPU and resident memory over pid and every process
// below it. Next.js dev servers do most of their work in child workers.
func GetProcessStats(pid int) (ProcessStats, error) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("process %d: %w", pid, err)
	}

	var stats ProcessStats
	queue := []*process.Process{root}
	seen := map[int32]bool{}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true
		stats.Processes++

		if pct, err := p.CPUPercent(); err == nil {
			stats.CPUPercent += pct
		}
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			stats.RSS += mi.RSS
		}
		if children, err := p.Children(); err == nil {
			queue = append(queue, children...)
		}
	}
	return stats, nil
}

func cpuTemperature() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return -1
	}

	for _, t := range temps {
		if containsAny(t.SensorKey, "cpu", "coretemp", "k10temp") && t.Temperature > 0 {
			return t.Temperature
		}
	}
	// Apple Silicon exposes no CPU-named sensor
	if runtime.GOOS == "darwin" {
		for _, t := range temps {
			if t.Temperature > 0 && t.Temperature < 120 {
				return t.Temperature
			}
		}
	}
	return -1
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FormatBytes formats a byte count for humans
func FormatBytes(n uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
