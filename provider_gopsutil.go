package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

var errNoData = errors.New("no data")

type gopsutilProvider struct {
	mu    sync.Mutex
	procs map[int32]*process.Process // pid -> handle carrying CPU accounting between calls
}

func newGopsutilProvider() *gopsutilProvider {
	return &gopsutilProvider{procs: make(map[int32]*process.Process)}
}

func (p *gopsutilProvider) CPUPercent(ctx context.Context, perCPU bool) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, perCPU)
}

func (p *gopsutilProvider) CPUCounts(ctx context.Context, logical bool) (int, error) {
	n, err := cpu.CountsWithContext(ctx, logical)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errNoData
	}
	return n, nil
}

func (p *gopsutilProvider) CPUFreq(ctx context.Context) (*FreqStat, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var sum, maxMhz float64
	var n int
	for _, info := range infos {
		if info.Mhz <= 0 {
			continue
		}
		sum += info.Mhz
		n++
		if info.Mhz > maxMhz {
			maxMhz = info.Mhz
		}
	}
	if n == 0 {
		return nil, errNoData
	}

	current, ok := currentCPUFreq()
	if !ok {
		current = sum / float64(n)
	}
	return &FreqStat{Current: current, Max: maxMhz}, nil
}

func (p *gopsutilProvider) Temperatures(ctx context.Context) ([]host.TemperatureStat, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	// Some sensors failing still yields the readable ones alongside a
	// warnings error.
	if len(temps) > 0 {
		return temps, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, errNoData
}

func (p *gopsutilProvider) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (p *gopsutilProvider) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func (p *gopsutilProvider) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func (p *gopsutilProvider) DiskUsage(ctx context.Context, mountpoint string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, mountpoint)
}

func (p *gopsutilProvider) NetCounters(ctx context.Context) (*net.IOCountersStat, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, errNoData
	}
	return &counters[0], nil
}

// Processes reports every running process. Handles are reused across calls
// so CPU percent covers the time since the previous call, and handles of
// exited processes are dropped.
func (p *gopsutilProvider) Processes(ctx context.Context) ([]ProcessStat, error) {
	current, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	updated := make(map[int32]*process.Process, len(current))
	stats := make([]ProcessStat, 0, len(current))
	for _, proc := range current {
		if cached, ok := p.procs[proc.Pid]; ok && sameProcess(ctx, cached, proc) {
			proc = cached
		}

		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// Exited between listing and inspection.
			continue
		}
		updated[proc.Pid] = proc

		stat := ProcessStat{PID: proc.Pid, Name: name}
		if cpuPct, err := proc.PercentWithContext(ctx, 0); err == nil {
			stat.CPUPercent = ptr(cpuPct)
		}
		if memPct, err := proc.MemoryPercentWithContext(ctx); err == nil {
			stat.MemPercent = ptr(float64(memPct))
		}
		if status, err := proc.StatusWithContext(ctx); err == nil && len(status) > 0 {
			stat.Status = strings.Join(status, ",")
		}
		stats = append(stats, stat)
	}
	p.procs = updated

	return stats, nil
}

// sameProcess reports whether a cached handle still refers to the process
// now running under its PID. A reused PID has a different create time.
func sameProcess(ctx context.Context, cached, current *process.Process) bool {
	was, err := cached.CreateTimeWithContext(ctx)
	if err != nil {
		return false
	}
	is, err := current.CreateTimeWithContext(ctx)
	if err != nil {
		return false
	}
	return was == is
}

func (p *gopsutilProvider) HostInfo(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}

func (p *gopsutilProvider) BootTime(ctx context.Context) (uint64, error) {
	return host.BootTimeWithContext(ctx)
}
