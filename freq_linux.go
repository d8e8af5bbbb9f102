//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var sysCPUDir = "/sys/devices/system/cpu"

// currentCPUFreq averages scaling_cur_freq over all cores, in MHz.
func currentCPUFreq() (float64, bool) {
	paths, err := filepath.Glob(filepath.Join(sysCPUDir, "cpu[0-9]*", "cpufreq", "scaling_cur_freq"))
	if err != nil || len(paths) == 0 {
		return 0, false
	}

	var sum float64
	var n int
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// Value is in kHz.
		khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil || khz <= 0 {
			continue
		}
		sum += khz / 1000
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
