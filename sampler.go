package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxProcesses = 8

	// cpu, memory, disk, network, processes, system
	sampleCategories = 6
)

// ProviderError is returned when the provider failed every metric category
// of a sample. Partial failures never produce it.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("metrics provider unavailable: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// netSample holds the cumulative counters of the last successful read.
type netSample struct {
	counters net.IOCountersStat
	at       time.Time
	valid    bool
}

// Sampler turns provider readings into snapshots. It owns the previous
// network sample; Sample serializes so each read-modify-write of it covers
// exactly one inter-sample interval.
type Sampler struct {
	provider Provider
	log      logrus.FieldLogger
	now      func() time.Time

	mu      sync.Mutex
	prevNet netSample
	host    *host.InfoStat
}

func newSampler(ctx context.Context, provider Provider, log logrus.FieldLogger) *Sampler {
	return newSamplerWithClock(ctx, provider, log, time.Now)
}

func newSamplerWithClock(ctx context.Context, provider Provider, log logrus.FieldLogger, now func() time.Time) *Sampler {
	s := &Sampler{
		provider: provider,
		log:      log,
		now:      now,
	}
	s.prime(ctx)
	return s
}

// prime takes the first network reading and starts the provider's
// since-last-call CPU accounting so the first sample reports real values.
func (s *Sampler) prime(ctx context.Context) {
	if _, err := s.provider.CPUPercent(ctx, false); err != nil {
		s.log.Debugf("prime cpu percent: %v", err)
	}
	if _, err := s.provider.CPUPercent(ctx, true); err != nil {
		s.log.Debugf("prime per-core cpu percent: %v", err)
	}

	counters, err := s.provider.NetCounters(ctx)
	if err != nil {
		s.log.Warnf("initial network counters unavailable: %v", err)
		return
	}
	s.prevNet = netSample{counters: *counters, at: s.now(), valid: true}
}

// Sample reads the provider once and assembles a snapshot. Categories the
// provider cannot supply are left null or empty.
func (s *Sampler) Sample(ctx context.Context) (*MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs *multierror.Error
	failed := 0
	fail := func(category string, err error) {
		failed++
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", category, err))
	}

	snap := &MetricsSnapshot{
		Disk:      []DiskInfo{},
		Processes: []ProcessInfo{},
	}

	var err error
	if snap.CPU, err = s.sampleCPU(ctx); err != nil {
		fail("cpu", err)
	}
	if snap.Memory, err = s.sampleMemory(ctx); err != nil {
		fail("memory", err)
	}
	if disks, err := s.sampleDisks(ctx); err != nil {
		fail("disk", err)
	} else {
		snap.Disk = disks
	}

	now := s.now()
	if snap.Network, err = s.sampleNetwork(ctx, now); err != nil {
		fail("network", err)
	}
	if procs, err := s.sampleProcesses(ctx); err != nil {
		fail("processes", err)
	} else {
		snap.Processes = procs
	}
	if snap.System, err = s.sampleSystem(ctx, now); err != nil {
		fail("system", err)
	}
	snap.TS = formatTimestamp(now)

	if failed == sampleCategories {
		return nil, &ProviderError{Err: errs.ErrorOrNil()}
	}
	if errs != nil {
		s.log.Debugf("degraded sample: %v", errs)
	}
	return snap, nil
}

func (s *Sampler) sampleCPU(ctx context.Context) (*CPUInfo, error) {
	total, err := s.provider.CPUPercent(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(total) == 0 {
		return nil, errNoData
	}

	info := &CPUInfo{
		Percent: round1(total[0]),
		PerCore: []float64{},
	}

	if perCore, err := s.provider.CPUPercent(ctx, true); err != nil {
		s.log.Debugf("per-core cpu percent: %v", err)
	} else {
		for _, pct := range perCore {
			info.PerCore = append(info.PerCore, round1(pct))
		}
	}

	if n, err := s.provider.CPUCounts(ctx, true); err != nil {
		s.log.Debugf("logical cpu count: %v", err)
	} else {
		info.Count = ptr(n)
	}
	if n, err := s.provider.CPUCounts(ctx, false); err != nil {
		s.log.Debugf("physical cpu count: %v", err)
	} else {
		info.CountPhys = ptr(n)
	}

	if freq, err := s.provider.CPUFreq(ctx); err != nil {
		s.log.Debugf("cpu frequency: %v", err)
	} else if freq != nil {
		info.FreqMHz = ptr(round0(freq.Current))
		info.FreqMax = ptr(round0(freq.Max))
	}

	if temps, err := s.provider.Temperatures(ctx); err != nil {
		s.log.Debugf("cpu temperature: %v", err)
	} else {
		for _, t := range temps {
			if t.Temperature != 0 {
				info.TempC = ptr(round1(t.Temperature))
				break
			}
		}
	}

	return info, nil
}

func (s *Sampler) sampleMemory(ctx context.Context) (*MemoryInfo, error) {
	vm, err := s.provider.VirtualMemory(ctx)
	if err != nil {
		return nil, err
	}

	info := &MemoryInfo{
		Total:   vm.Total,
		Used:    vm.Used,
		Free:    vm.Available,
		Percent: round1(memoryPercent(vm.Total, vm.Available)),
	}

	if swap, err := s.provider.SwapMemory(ctx); err != nil {
		s.log.Debugf("swap memory: %v", err)
	} else {
		info.SwapUsed = swap.Used
		info.SwapTotal = swap.Total
		info.SwapPercent = round1(swap.UsedPercent)
	}

	return info, nil
}

// memoryPercent is the share of memory not available to new allocations,
// which counts reclaimable cache as free.
func memoryPercent(total, available uint64) float64 {
	if total == 0 {
		return 0
	}
	if available > total {
		available = total
	}
	return float64(total-available) / float64(total) * 100
}

// sampleDisks skips partitions whose usage cannot be read. Permission
// denials are expected for some mounts and are not logged.
func (s *Sampler) sampleDisks(ctx context.Context) ([]DiskInfo, error) {
	parts, err := s.provider.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	disks := make([]DiskInfo, 0, len(parts))
	for _, part := range parts {
		usage, err := s.provider.DiskUsage(ctx, part.Mountpoint)
		if err != nil {
			if !errors.Is(err, fs.ErrPermission) {
				s.log.Debugf("disk usage %s: %v", part.Mountpoint, err)
			}
			continue
		}
		disks = append(disks, DiskInfo{
			Device:     part.Device,
			Mountpoint: part.Mountpoint,
			FSType:     part.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    round1(usage.UsedPercent),
		})
	}
	return disks, nil
}

// sampleNetwork derives throughput from the previous counter reading and
// replaces it. A failed read leaves the previous reading in place.
func (s *Sampler) sampleNetwork(ctx context.Context, now time.Time) (*NetworkInfo, error) {
	counters, err := s.provider.NetCounters(ctx)
	if err != nil {
		return nil, err
	}

	info := &NetworkInfo{
		BytesSent:   counters.BytesSent,
		BytesRecv:   counters.BytesRecv,
		PacketsSent: counters.PacketsSent,
		PacketsRecv: counters.PacketsRecv,
	}

	prev := s.prevNet
	if prev.valid {
		elapsed := now.Sub(prev.at).Seconds()
		if elapsed <= 0 {
			elapsed = 1
		}
		info.RecvSpeed = byteRate(prev.counters.BytesRecv, counters.BytesRecv, elapsed)
		info.SendSpeed = byteRate(prev.counters.BytesSent, counters.BytesSent, elapsed)
	}

	s.prevNet = netSample{counters: *counters, at: now, valid: true}
	return info, nil
}

// byteRate is zero when the counter went backwards, e.g. after an
// interface reset.
func byteRate(prev, cur uint64, elapsed float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed
}

func (s *Sampler) sampleProcesses(ctx context.Context) ([]ProcessInfo, error) {
	stats, err := s.provider.Processes(ctx)
	if err != nil {
		return nil, err
	}
	return topProcesses(stats, maxProcesses), nil
}

// topProcesses returns at most n processes ordered by CPU percent,
// highest first. Missing values count as zero.
func topProcesses(stats []ProcessStat, n int) []ProcessInfo {
	sorted := make([]ProcessStat, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return valueOrZero(sorted[i].CPUPercent) > valueOrZero(sorted[j].CPUPercent)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	result := make([]ProcessInfo, 0, len(sorted))
	for _, p := range sorted {
		result = append(result, ProcessInfo{
			PID:    p.PID,
			Name:   p.Name,
			CPU:    round1(valueOrZero(p.CPUPercent)),
			Mem:    round1(valueOrZero(p.MemPercent)),
			Status: p.Status,
		})
	}
	return result
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// sampleSystem fills host identity from a cached host info lookup and
// computes uptime from the boot time on every call. Uptime stays null when
// the boot time cannot be read.
func (s *Sampler) sampleSystem(ctx context.Context, now time.Time) (SystemInfo, error) {
	info := SystemInfo{
		OS:      osName(runtime.GOOS),
		Machine: runtime.GOARCH,
	}

	var errs *multierror.Error
	freshHost := false
	if s.host == nil {
		hi, err := s.provider.HostInfo(ctx)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("host info: %w", err))
		} else {
			s.host = hi
			freshHost = true
		}
	}
	if s.host != nil {
		if s.host.OS != "" {
			info.OS = osName(s.host.OS)
		}
		if s.host.KernelArch != "" {
			info.Machine = s.host.KernelArch
		}
		info.Release = s.host.KernelVersion
		info.Hostname = s.host.Hostname
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	boot, err := s.provider.BootTime(ctx)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("boot time: %w", err))
		// Cached host identity is not a reading from this tick.
		if !freshHost {
			return info, errs
		}
		s.log.Debugf("system info: %v", errs)
		return info, nil
	}

	var up uint64
	if secs := now.Unix() - int64(boot); secs > 0 {
		up = uint64(secs)
	}
	info.UptimeS = ptr(up)
	info.Uptime = ptr(formatUptime(up))

	if errs != nil {
		s.log.Debugf("system info: %v", errs)
	}
	return info, nil
}

// osName renders a GOOS-style name the way platform tools print it,
// e.g. linux -> Linux.
func osName(goos string) string {
	return cases.Title(language.Und).String(goos)
}
