// Package capability probes the host's OS, CPU, memory, and GPU so the
// Command Synthesizer can tell the model what hardware acceleration is
// available. Every field accepts an environment override; probing only
// fills in what the operator hasn't pinned down.
package capability

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tinkeshwar/videopipeline/internal/config"
)

// Info is the host-capability snapshot serialized into the videos.system_info
// column for each synthesis call.
type Info struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	CPUModel  string `json:"cpu_model"`
	TotalRAM  string `json:"total_ram"`
	GPU       string `json:"gpu"`
}

// Probe collects Info, preferring HOST_* environment overrides and falling
// back to gopsutil/runtime introspection, then a GPU-detection cascade
// (nvidia-smi, rocm-smi, vainfo, lspci) grounded on the original
// implementation's get_system_info(). Every probe step is best-effort: a
// missing tool or non-zero exit is swallowed, not propagated.
func Probe(ctx context.Context, cfg *config.Config) Info {
	info := Info{
		OS:        cfg.HostOS,
		OSVersion: cfg.HostOSVersion,
		CPUModel:  cfg.HostCPUModel,
		TotalRAM:  cfg.HostTotalRAM,
		GPU:       cfg.HostGPUModel,
	}

	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.OSVersion == "" {
		info.OSVersion = runtime.GOARCH
	}
	if info.CPUModel == "" {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
			info.CPUModel = infos[0].ModelName
		} else {
			info.CPUModel = "unknown"
		}
	}
	if info.TotalRAM == "" {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			info.TotalRAM = strconv.FormatUint(vm.Total, 10)
		} else {
			info.TotalRAM = "unknown"
		}
	}
	if info.GPU == "" {
		info.GPU = detectGPU(ctx)
	}

	return info
}

// detectGPU runs the fallback cascade: nvidia-smi, rocm-smi, vainfo, then
// lspci on Linux. Each step that fails to execute or returns nothing falls
// through to the next.
func detectGPU(ctx context.Context) string {
	if out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return "NVIDIA GPU: " + name
		}
	}
	if out, err := exec.CommandContext(ctx, "rocm-smi", "--showproductname").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return "AMD GPU (ROCm): " + name
		}
	}
	if out, err := exec.CommandContext(ctx, "vainfo").Output(); err == nil {
		if strings.Contains(string(out), "VAProfile") {
			return "VAAPI available"
		}
	}
	if runtime.GOOS == "linux" {
		if out, err := exec.CommandContext(ctx, "lspci").Output(); err == nil {
			for _, line := range strings.Split(string(out), "\n") {
				if strings.Contains(line, "AMD") || strings.Contains(line, "ATI") {
					return "AMD GPU detected via lspci: " + strings.TrimSpace(line)
				}
			}
			for _, line := range strings.Split(string(out), "\n") {
				if strings.Contains(line, "NVIDIA") {
					return "NVIDIA GPU detected via lspci: " + strings.TrimSpace(line)
				}
			}
			return "no discrete GPU detected via lspci"
		}
	}
	return "GPU detection not supported on this host without NVIDIA or ROCm tools"
}
