package tensor

import (
	"errors"
	"testing"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name     string
		expected DeviceType
		noBack   bool
		wantErr  bool
	}{
		{"", CPU, false, false},
		{"auto", CPU, false, false},
		{"CPU", CPU, false, false},
		{"accelerator", Accelerator, true, true},
		{"gpu", Accelerator, true, true},
		{"tpu", CPU, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDevice(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDevice(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseDevice(%q) = %v, expected %v", tt.name, got, tt.expected)
			}
			if tt.noBack && !errors.Is(err, ErrNoBackend) {
				t.Errorf("expected ErrNoBackend, got %v", err)
			}
		})
	}
}

func TestDescribeDevice(t *testing.T) {
	info := DescribeDevice(CPU)
	if info.Device != CPU {
		t.Errorf("Device = %v, expected CPU", info.Device)
	}
	if info.Brand == "" {
		t.Error("Brand should never be empty")
	}
	if info.LogicalCores <= 0 {
		t.Errorf("LogicalCores = %d, expected > 0", info.LogicalCores)
	}
	if info.String() == "" {
		t.Error("String should not be empty")
	}
}

func TestTo(t *testing.T) {
	x, _ := Zeros([]int{2}, CPU)
	same, err := x.To(CPU)
	if err != nil || same != x {
		t.Errorf("To(CPU) should be a no-op, got %v, %v", same, err)
	}
	if _, err := x.To(Accelerator); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}
