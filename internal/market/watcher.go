package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Watcher periodically reports markets whose odds or volume moved
type Watcher struct {
	factory  *Factory
	interval time.Duration
	onChange func([]Snapshot)
	last     map[common.Address]watchKey
}

type watchKey struct {
	oddsBps uint64
	volume  uint64
	settled bool
}

// NewWatcher creates a watcher that calls onChange with changed snapshots
func NewWatcher(f *Factory, interval time.Duration, onChange func([]Snapshot)) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		factory:  f,
		interval: interval,
		onChange: onChange,
		last:     make(map[common.Address]watchKey),
	}
}

// Run blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if changed := w.check(); len(changed) > 0 && w.onChange != nil {
				log.Debug().Int("markets", len(changed)).Msg("odds changed")
				w.onChange(changed)
			}
		}
	}
}

// check returns the snapshots that differ from the previous tick
func (w *Watcher) check() []Snapshot {
	var changed []Snapshot

	for _, mkt := range w.factory.GetAllMarkets() {
		snap := mkt.Snapshot()
		key := watchKey{
			oddsBps: snap.OddsBps,
			volume:  snap.TotalVolume,
			settled: snap.Settled,
		}

		if prev, ok := w.last[snap.Address]; ok && prev == key {
			continue
		}
		w.last[snap.Address] = key
		changed = append(changed, snap)
	}
	return changed
}
