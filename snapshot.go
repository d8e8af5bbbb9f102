package main

import (
	"fmt"
	"math"
	"time"
)

// MetricsSnapshot is one tick's worth of host telemetry. Values are never
// mutated after the sampler returns them.
type MetricsSnapshot struct {
	TS        string        `json:"ts"`
	System    SystemInfo    `json:"system"`
	CPU       *CPUInfo      `json:"cpu"`
	Memory    *MemoryInfo   `json:"memory"`
	Disk      []DiskInfo    `json:"disk"`
	Network   *NetworkInfo  `json:"network"`
	Processes []ProcessInfo `json:"processes"`
}

type SystemInfo struct {
	OS       string  `json:"os"`
	Release  string  `json:"release"`
	Machine  string  `json:"machine"`
	Hostname string  `json:"hostname"`
	Uptime   *string `json:"uptime"`
	UptimeS  *uint64 `json:"uptime_s"`
}

type CPUInfo struct {
	Percent   float64   `json:"percent"`
	PerCore   []float64 `json:"per_core"`
	Count     *int      `json:"count"`
	CountPhys *int      `json:"count_phys"`
	FreqMHz   *float64  `json:"freq_mhz"`
	FreqMax   *float64  `json:"freq_max"`
	TempC     *float64  `json:"temp_c"`
}

type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	Percent     float64 `json:"percent"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapPercent float64 `json:"swap_percent"`
}

type DiskInfo struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	FSType     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

type NetworkInfo struct {
	BytesSent   uint64  `json:"bytes_sent"`
	BytesRecv   uint64  `json:"bytes_recv"`
	PacketsSent uint64  `json:"packets_sent"`
	PacketsRecv uint64  `json:"packets_recv"`
	SendSpeed   float64 `json:"send_speed"` // bytes/s
	RecvSpeed   float64 `json:"recv_speed"` // bytes/s
}

type ProcessInfo struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`
	Mem    float64 `json:"mem"`
	Status string  `json:"status"`
}

// timestampLayout mirrors ISO-8601 with microseconds and a literal Z.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// formatUptime renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func formatUptime(secs uint64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round0(v float64) float64 {
	return math.Round(v)
}

func ptr[T any](v T) *T {
	return &v
}
