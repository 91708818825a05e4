package composer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// resultSlot is a single-assignment cell. Only the first settle call stores its
// value; later calls report false and are dropped.
type resultSlot[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

func newResultSlot[T any]() *resultSlot[T] {
	return &resultSlot[T]{done: make(chan struct{})}
}

func (s *resultSlot[T]) settle(v T) bool {
	won := false
	s.once.Do(func() {
		s.val = v
		won = true
		close(s.done)
	})
	return won
}

func (s *resultSlot[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type assetOutcome struct {
	img image.Image
	err error
}

// raceAsset starts loading the brand asset and a timeout timer. Whichever finishes
// first settles the returned slot; the loser's outcome is discarded. The returned
// stop func abandons the race and must always be called.
func raceAsset(ctx context.Context, source AssetSource, timeout time.Duration) (*resultSlot[assetOutcome], func()) {
	slot := newResultSlot[assetOutcome]()
	if source == nil {
		slot.settle(assetOutcome{err: fmt.Errorf("%w: no asset source configured", ErrAssetDecode)})
		return slot, func() {}
	}

	loadCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeout, func() {
		if slot.settle(assetOutcome{err: ErrAssetTimeout}) {
			slog.Debug("Composer: brand asset timer won the race", "timeout_ms", timeout.Milliseconds())
			cancel()
		}
	})

	go func() {
		defer cancel()
		img, err := source.Load(loadCtx)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrAssetDecode, err)
		}
		if slot.settle(assetOutcome{img: img, err: err}) {
			timer.Stop()
			return
		}
		slog.Debug("Composer: brand asset finished after the race was decided; ignoring", "error", err)
	}()

	return slot, func() {
		timer.Stop()
		cancel()
	}
}
