package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/sirupsen/logrus"
)

var errFake = errors.New("fake provider failure")

// fakeProvider returns canned readings. Fields may be changed between
// samples under mu.
type fakeProvider struct {
	mu sync.Mutex

	cpuPercent    []float64
	perCPU        []float64
	cpuErr        error
	logical       int
	physical      int
	countErr      error
	freq          *FreqStat
	freqErr       error
	temps         []host.TemperatureStat
	tempErr       error
	vm            *mem.VirtualMemoryStat
	vmErr         error
	swap          *mem.SwapMemoryStat
	swapErr       error
	partitions    []disk.PartitionStat
	partitionsErr error
	usage         map[string]*disk.UsageStat
	usageErr      map[string]error
	net           *net.IOCountersStat
	netErr        error
	netCalls      int
	procs         []ProcessStat
	procsErr      error
	host          *host.InfoStat
	hostErr       error
	boot          uint64
	bootErr       error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		cpuPercent: []float64{12.34},
		perCPU:     []float64{10.04, 14.66},
		logical:    2,
		physical:   1,
		freq:       &FreqStat{Current: 2394.6, Max: 3600.2},
		temps: []host.TemperatureStat{
			{SensorKey: "acpitz", Temperature: 0},
			{SensorKey: "coretemp_core0", Temperature: 47.25},
		},
		vm:   &mem.VirtualMemoryStat{Total: 8000, Used: 3000, Available: 5000, UsedPercent: 37.5},
		swap: &mem.SwapMemoryStat{Total: 2000, Used: 500, UsedPercent: 25},
		partitions: []disk.PartitionStat{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
		},
		usage: map[string]*disk.UsageStat{
			"/": {Total: 100, Used: 40, Free: 60, UsedPercent: 40},
		},
		usageErr: map[string]error{},
		net:      &net.IOCountersStat{Name: "all", BytesSent: 1000, BytesRecv: 2000, PacketsSent: 10, PacketsRecv: 20},
		procs: []ProcessStat{
			{PID: 1, Name: "init", CPUPercent: ptr(0.0), MemPercent: ptr(0.1), Status: "sleep"},
		},
		host: &host.InfoStat{Hostname: "box", OS: "linux", KernelVersion: "6.1.0", KernelArch: "x86_64"},
		boot: 1_000_000,
	}
}

func (f *fakeProvider) CPUPercent(_ context.Context, perCPU bool) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cpuErr != nil {
		return nil, f.cpuErr
	}
	if perCPU {
		return f.perCPU, nil
	}
	return f.cpuPercent, nil
}

func (f *fakeProvider) CPUCounts(_ context.Context, logical bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if logical {
		return f.logical, nil
	}
	return f.physical, nil
}

func (f *fakeProvider) CPUFreq(context.Context) (*FreqStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freq, f.freqErr
}

func (f *fakeProvider) Temperatures(context.Context) ([]host.TemperatureStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temps, f.tempErr
}

func (f *fakeProvider) VirtualMemory(context.Context) (*mem.VirtualMemoryStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vm, f.vmErr
}

func (f *fakeProvider) SwapMemory(context.Context) (*mem.SwapMemoryStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swap, f.swapErr
}

func (f *fakeProvider) Partitions(context.Context) ([]disk.PartitionStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.partitions, f.partitionsErr
}

func (f *fakeProvider) DiskUsage(_ context.Context, mountpoint string) (*disk.UsageStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usageErr[mountpoint]; err != nil {
		return nil, err
	}
	return f.usage[mountpoint], nil
}

func (f *fakeProvider) NetCounters(context.Context) (*net.IOCountersStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.netCalls++
	if f.netErr != nil {
		return nil, f.netErr
	}
	cp := *f.net
	return &cp, nil
}

func (f *fakeProvider) Processes(context.Context) ([]ProcessStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs, f.procsErr
}

func (f *fakeProvider) HostInfo(context.Context) (*host.InfoStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.hostErr
}

func (f *fakeProvider) BootTime(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boot, f.bootErr
}

func (f *fakeProvider) setNet(sent, recv uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.net = &net.IOCountersStat{Name: "all", BytesSent: sent, BytesRecv: recv}
}

func (f *fakeProvider) failAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuErr = errFake
	f.vmErr = errFake
	f.partitionsErr = errFake
	f.netErr = errFake
	f.procsErr = errFake
	f.hostErr = errFake
	f.bootErr = errFake
}

func (f *fakeProvider) restore() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuErr = nil
	f.vmErr = nil
	f.partitionsErr = nil
	f.netErr = nil
	f.procsErr = nil
	f.hostErr = nil
	f.bootErr = nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
