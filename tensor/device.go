package tensor

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// DeviceInfo describes the compute device a run executes on
type DeviceInfo struct {
	Device        DeviceType
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s, %d physical / %d logical cores, features: %s)",
		d.Device, d.Brand, d.PhysicalCores, d.LogicalCores, strings.Join(d.Features, ","))
}

// ParseDevice resolves a configured device name. "auto" selects the best
// device that has a backend, which is always the CPU in this build.
func ParseDevice(name string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto", "cpu":
		return CPU, nil
	case "accelerator", "gpu", "cuda", "mps":
		return Accelerator, fmt.Errorf("%w: %s", ErrNoBackend, name)
	default:
		return CPU, fmt.Errorf("unknown device %q", name)
	}
}

// DescribeDevice reports the hardware behind a device
func DescribeDevice(device DeviceType) DeviceInfo {
	info := DeviceInfo{
		Device:        device,
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if info.Brand == "" {
		info.Brand = runtime.GOARCH
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}

	simd := []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	}
	for _, f := range simd {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// To returns a tensor resident on device. CPU to CPU is a no-op.
func (t *Tensor) To(device DeviceType) (*Tensor, error) {
	if device == t.Device {
		return t, nil
	}
	return nil, fmt.Errorf("%w: cannot move tensor from %s to %s", ErrNoBackend, t.Device, device)
}
