// Package thermal sizes install concurrency and start batches to the host so
// a burst of previews does not throttle a laptop.
package thermal

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HardwareInfo contains detected hardware information
type HardwareInfo struct {
	NumCPU         int
	PhysicalCores  int
	MemoryTotal    uint64
	IsDarwin       bool
	IsMacBookAir   bool
	IsAppleSilicon bool
	ModelName      string
}

// DefaultBatchThreshold is the project count above which starts are batched
const DefaultBatchThreshold = 5

// DefaultCoolDownMs is the pause between start batches
const DefaultCoolDownMs = 500

// hotCelsius is the sensor reading treated as thermal pressure
const hotCelsius = 85.0

// DetectHardware inspects the host
func DetectHardware() HardwareInfo {
	info := HardwareInfo{
		NumCPU:   runtime.NumCPU(),
		IsDarwin: runtime.GOOS == "darwin",
	}
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		info.PhysicalCores = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
	}
	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.IsAppleSilicon = strings.Contains(strings.ToLower(cpus[0].ModelName), "apple")
		if !info.IsDarwin {
			info.ModelName = cpus[0].ModelName
		}
	}
	if info.IsDarwin {
		info.ModelName = macModel()
		info.IsMacBookAir = strings.Contains(strings.ToLower(info.ModelName), "macbookair")
	}
	return info
}

// macModel returns the model identifier, e.g. MacBookAir10,1
func macModel() string {
	out, err := exec.Command("sysctl", "-n", "hw.model").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Concurrency returns how many CPU-heavy jobs the host sustains. A
// positive configured value wins.
func Concurrency(hw HardwareInfo, configured int) int {
	if configured > 0 {
		return configured
	}

	optimal := hw.NumCPU
	switch {
	case hw.IsMacBookAir:
		// passive cooling
		optimal = hw.NumCPU / 2
	case hw.IsDarwin && hw.IsAppleSilicon:
		optimal = hw.NumCPU * 3 / 4
	}
	return max(optimal, 2)
}

// InstallSlots returns how many dependency installs may run at once.
// Installs saturate disk and network as well as CPU, so they get half the
// general concurrency.
func InstallSlots(hw HardwareInfo, configured int) int {
	if configured > 0 {
		return configured
	}
	return max(Concurrency(hw, 0)/2, 1)
}

// BatchSize returns how many previews to start together when starting
// projectCount at once. A positive configured value wins.
func BatchSize(hw HardwareInfo, projectCount, configured int) int {
	if configured > 0 {
		return configured
	}
	if projectCount <= DefaultBatchThreshold {
		return max(projectCount, 1)
	}

	switch {
	case hw.IsMacBookAir:
		return 2
	case hw.IsDarwin && hw.IsAppleSilicon:
		return 4
	case hw.NumCPU >= 8:
		return 5
	default:
		return 3
	}
}

// Status is the host's current thermal state
type Status struct {
	// Level is "cool" or "warm"
	Level string
	// RecommendedConcurrency accounts for throttling
	RecommendedConcurrency int
	// Celsius is the hottest sensor reading, 0 if unknown
	Celsius float64
	Message string
}

// CurrentStatus samples thermal pressure. macOS reports throttling through
// pmset; elsewhere sensor temperatures are used.
func CurrentStatus(hw HardwareInfo) Status {
	status := Status{
		Level:                  "cool",
		RecommendedConcurrency: Concurrency(hw, 0),
		Message:                "System is running cool",
	}

	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.Temperature > status.Celsius && t.Temperature < 150 {
				status.Celsius = t.Temperature
			}
		}
	}
	if status.Celsius >= hotCelsius {
		status.warm(fmt.Sprintf("Sensors report %.0f°C", status.Celsius))
	}

	if hw.IsDarwin {
		if out, err := exec.Command("pmset", "-g", "therm").Output(); err == nil {
			applyPmset(&status, string(out))
		}
	}
	return status
}

func (s *Status) warm(message string) {
	s.Level = "warm"
	s.RecommendedConcurrency = max(s.RecommendedConcurrency/2, 1)
	s.Message = message
}

// applyPmset reads `pmset -g therm` output
func applyPmset(s *Status, output string) {
	for _, line := range strings.Split(strings.ToLower(output), "\n") {
		fields := strings.Fields(strings.ReplaceAll(line, "=", " "))
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "cpu_speed_limit":
			if fields[1] != "100" && s.Level == "cool" {
				s.warm("CPU is being throttled due to thermal pressure")
			}
		case "thermal_level":
			if fields[1] != "0" && s.Level == "cool" {
				s.warm("System thermal pressure detected")
			}
		}
	}
}

// FormatHardwareInfo describes the host in one line
func FormatHardwareInfo(hw HardwareInfo) string {
	parts := []string{fmt.Sprintf("%d cores", hw.NumCPU)}
	if hw.ModelName != "" {
		parts = append(parts, hw.ModelName)
	}
	if hw.IsAppleSilicon {
		parts = append(parts, "Apple Silicon")
	}
	if hw.MemoryTotal > 0 {
		parts = append(parts, fmt.Sprintf("%.1f GB RAM", float64(hw.MemoryTotal)/(1<<30)))
	}
	if !hw.IsDarwin {
		parts = append(parts, runtime.GOOS)
	}
	return strings.Join(parts, ", ")
}
