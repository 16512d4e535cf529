package storage

import (
	"context"
	"iter"
	"sync/atomic"
)

// ListingProducer translates a backend-native listing into FileStat values.
// It must stop as soon as yield returns false.
type ListingProducer func(ctx context.Context, yield func(*FileStat, error) bool)

// Listing is a lazy, single-pass, non-restartable sequence of FileStat.
//
// No backend call is made until the sequence is ranged over for the first
// time. The backend iterator is consumed at most once: ranging over a
// Listing a second time yields nothing. Call Adapter.List again to re-query
// the backend.
//
// Errors are delivered in-band. After yielding an error the producer stops.
//
//	for stat, err := range adapter.List(ctx, "photos", false).All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(stat.Path())
//	}
type Listing struct {
	ctx      context.Context
	produce  ListingProducer
	consumed atomic.Bool
}

// NewListing wraps produce. ctx is handed to the producer when the listing
// is first consumed.
func NewListing(ctx context.Context, produce ListingProducer) *Listing {
	return &Listing{ctx: ctx, produce: produce}
}

// FailedListing returns a listing that yields err once.
func FailedListing(err error) *Listing {
	return NewListing(context.Background(), func(_ context.Context, yield func(*FileStat, error) bool) {
		yield(nil, err)
	})
}

// All returns the sequence. Only the first range over it reaches the backend.
func (l *Listing) All() iter.Seq2[*FileStat, error] {
	return func(yield func(*FileStat, error) bool) {
		if !l.consumed.CompareAndSwap(false, true) {
			return
		}
		if err := l.ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		l.produce(l.ctx, yield)
	}
}

// Consumed reports whether the listing has already been ranged over.
func (l *Listing) Consumed() bool {
	return l.consumed.Load()
}

// Collect drains the listing into a slice, stopping at the first error.
func (l *Listing) Collect() ([]*FileStat, error) {
	var stats []*FileStat
	for stat, err := range l.All() {
		if err != nil {
			return stats, err
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
