package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type snapshotSource interface {
	Sample(ctx context.Context) (*MetricsSnapshot, error)
}

// encodedSnapshot pairs a snapshot with the bytes every subscriber of its
// tick receives.
type encodedSnapshot struct {
	snapshot *MetricsSnapshot
	payload  []byte
}

// Broadcaster samples on a fixed delay and pushes each snapshot to every
// registered subscriber. It keeps ticking with no subscribers so the
// provider's CPU accounting and the latest snapshot stay current.
type Broadcaster struct {
	source     snapshotSource
	registry   *Registry
	interval   time.Duration
	writeLimit int
	log        logrus.FieldLogger
	tel        *telemetry

	latest atomic.Pointer[encodedSnapshot]
}

func newBroadcaster(source snapshotSource, registry *Registry, interval time.Duration, writeLimit int, log logrus.FieldLogger, tel *telemetry) *Broadcaster {
	if writeLimit <= 0 {
		writeLimit = 1
	}
	return &Broadcaster{
		source:     source,
		registry:   registry,
		interval:   interval,
		writeLimit: writeLimit,
		log:        log,
		tel:        tel,
	}
}

// Run ticks until ctx is done. The first tick happens immediately; later
// ones wait interval after the previous tick finished. A failed tick is
// logged and retried on the next one.
func (b *Broadcaster) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	b.log.Debugf("broadcaster started, interval %s", b.interval)
	for {
		select {
		case <-ctx.Done():
			b.log.Debugf("broadcaster stopped")
			return nil
		case <-timer.C:
		}

		if _, err := b.Tick(ctx); err != nil && ctx.Err() == nil {
			b.log.Errorf("tick: %v", err)
		}
		timer.Reset(b.interval)
	}
}

// Tick takes one sample and fans it out. It returns the number of
// subscribers that received it.
func (b *Broadcaster) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	snap, err := b.source.Sample(ctx)
	b.tel.observeSample(time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("sample: %w", err)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	b.latest.Store(&encodedSnapshot{snapshot: snap, payload: payload})

	return b.fanOut(ctx, payload), nil
}

// fanOut delivers payload to the subscribers registered when it starts.
// Deliveries run independently; failed subscribers are removed in one
// step after all deliveries finish, then closed.
func (b *Broadcaster) fanOut(ctx context.Context, payload []byte) int {
	subs := b.registry.Snapshot()
	if len(subs) == 0 {
		return 0
	}

	var (
		mu   sync.Mutex
		dead []Subscriber
	)
	var g errgroup.Group
	g.SetLimit(b.writeLimit)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := deliver(ctx, sub, payload); err != nil {
				b.log.WithField("subscriber", sub.ID()).Debugf("delivery failed: %v", err)
				mu.Lock()
				dead = append(dead, sub)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	b.tel.observeFanOut(len(subs), len(dead))
	if len(dead) > 0 {
		b.registry.RemoveAll(dead)
		for _, sub := range dead {
			_ = sub.Close()
			b.log.WithField("subscriber", sub.ID()).Infof("subscriber dropped after failed delivery")
		}
	}
	return len(subs) - len(dead)
}

// deliver turns a panicking subscriber into a failed delivery so the rest
// of the fan-out is unaffected.
func deliver(ctx context.Context, sub Subscriber, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{SubscriberID: sub.ID(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return sub.Deliver(ctx, payload)
}

// Latest returns the most recent snapshot and its encoding, or nil before
// the first successful tick.
func (b *Broadcaster) Latest() (*MetricsSnapshot, []byte) {
	enc := b.latest.Load()
	if enc == nil {
		return nil, nil
	}
	return enc.snapshot, enc.payload
}
