// Package histogram buckets post timestamps into UTC calendar days under a
// count bound and a time window.
package histogram

import (
	"time"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

// Options bound an Aggregator. A zero MaxItems or Window disables that bound.
type Options struct {
	MaxItems int
	Window   time.Duration
	Now      time.Time
	// AssumeNewestFirst enables early termination at the first item older
	// than the window. Disable it for sources that are not reverse
	// chronological.
	AssumeNewestFirst bool
}

// Histogram is the aggregate of everything retained.
type Histogram struct {
	Days     map[string]int
	Earliest *time.Time
	Latest   *time.Time
	Total    int
}

// Aggregator consumes pages of timestamps. It is not safe for concurrent use.
type Aggregator struct {
	opts     Options
	lower    time.Time
	days     map[string]int
	earliest time.Time
	latest   time.Time
	total    int
	done     bool
}

func New(opts Options) *Aggregator {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	opts.Now = opts.Now.UTC()
	a := &Aggregator{opts: opts, days: make(map[string]int)}
	if opts.Window > 0 {
		a.lower = opts.Now.Add(-opts.Window)
	}
	return a
}

// Consume folds one page into the histogram and reports whether another
// page should be fetched.
func (a *Aggregator) Consume(items []time.Time) bool {
	if a.done {
		return false
	}
	for _, ts := range items {
		if a.full() {
			a.done = true
			return false
		}
		ts = ts.UTC()
		if !a.lower.IsZero() && ts.Before(a.lower) {
			if a.opts.AssumeNewestFirst {
				a.done = true
				return false
			}
			continue
		}
		if ts.After(a.opts.Now) {
			continue
		}
		a.add(ts)
	}
	if a.full() {
		a.done = true
	}
	return !a.done
}

// Include adds a single item under the count and window bounds without
// affecting termination. It serves items known to be out of order, such as
// a pinned post at the top of a timeline.
func (a *Aggregator) Include(ts time.Time) {
	if a.done || a.full() {
		return
	}
	ts = ts.UTC()
	if (!a.lower.IsZero() && ts.Before(a.lower)) || ts.After(a.opts.Now) {
		return
	}
	a.add(ts)
}

// Total is the number of items retained so far.
func (a *Aggregator) Total() int {
	return a.total
}

// Done reports whether consumption has terminated.
func (a *Aggregator) Done() bool {
	return a.done
}

func (a *Aggregator) full() bool {
	return a.opts.MaxItems > 0 && a.total >= a.opts.MaxItems
}

func (a *Aggregator) add(ts time.Time) {
	a.days[ts.Format(types.DayLayout)]++
	if a.total == 0 || ts.Before(a.earliest) {
		a.earliest = ts
	}
	if a.total == 0 || ts.After(a.latest) {
		a.latest = ts
	}
	a.total++
}

// Result returns a copy of the current aggregate.
func (a *Aggregator) Result() Histogram {
	h := Histogram{Days: make(map[string]int, len(a.days)), Total: a.total}
	for k, v := range a.days {
		h.Days[k] = v
	}
	if a.total > 0 {
		e, l := a.earliest, a.latest
		h.Earliest, h.Latest = &e, &l
	}
	return h
}
