//go:build !linux

package main

func currentCPUFreq() (float64, bool) {
	return 0, false
}
