package main

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Provider is the OS-metrics capability the sampler reads from. CPU percent
// queries are non-blocking and report usage since the previous call.
type Provider interface {
	CPUPercent(ctx context.Context, perCPU bool) ([]float64, error)
	CPUCounts(ctx context.Context, logical bool) (int, error)
	CPUFreq(ctx context.Context) (*FreqStat, error)
	Temperatures(ctx context.Context) ([]host.TemperatureStat, error)
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error)
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
	DiskUsage(ctx context.Context, mountpoint string) (*disk.UsageStat, error)
	NetCounters(ctx context.Context) (*net.IOCountersStat, error)
	Processes(ctx context.Context) ([]ProcessStat, error)
	HostInfo(ctx context.Context) (*host.InfoStat, error)
	BootTime(ctx context.Context) (uint64, error)
}

// FreqStat is the CPU clock in MHz.
type FreqStat struct {
	Current float64
	Max     float64
}

// ProcessStat is the last-known state of a single process. Nil percentages
// mean the value could not be read.
type ProcessStat struct {
	PID        int32
	Name       string
	CPUPercent *float64
	MemPercent *float64
	Status     string
}
