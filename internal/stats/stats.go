package stats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// These are the types of statistics that we can add. The value is the JSON key that will be used for serialization.
type StatType string

const (
	Scrapes         StatType = "scrapes"
	ScrapeSuccesses StatType = "scrape_successes"
	PagesFetched    StatType = "pages_fetched"
	TweetsCounted   StatType = "tweets_counted"
	LoginErrors     StatType = "login_errors"
	RateLimitErrors StatType = "ratelimit_errors"
	FetchErrors     StatType = "fetch_errors"
	NotFound        StatType = "target_not_found"
)

// AddStat is the message sent to the collector goroutine
type AddStat struct {
	Type    StatType
	Account string
	Num     uint
}

// Stats is the structure we use to store the statistics
type Stats struct {
	BootTimeUnix      int64                        `json:"boot_time"`
	LastOperationUnix int64                        `json:"last_operation_time"`
	CurrentTimeUnix   int64                        `json:"current_time"`
	Stats             map[string]map[StatType]uint `json:"stats"`
	sync.Mutex
}

// StatsCollector aggregates per-account counters off the hot path
type StatsCollector struct {
	Stats *Stats
	Chan  chan AddStat
	done  chan struct{}
}

// StartCollector starts a goroutine that listens to a channel for AddStat
// messages and updates the stats accordingly. The goroutine exits with ctx.
func StartCollector(ctx context.Context, bufSize int) *StatsCollector {
	logrus.Info("Starting stats collector")

	s := Stats{
		BootTimeUnix: time.Now().Unix(),
		Stats:        make(map[string]map[StatType]uint),
	}

	ch := make(chan AddStat, bufSize)
	done := make(chan struct{})

	go func(s *Stats, ch chan AddStat) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case stat := <-ch:
				s.Lock()
				s.LastOperationUnix = time.Now().Unix()
				if _, ok := s.Stats[stat.Account]; !ok {
					s.Stats[stat.Account] = make(map[StatType]uint)
				}
				s.Stats[stat.Account][stat.Type] += stat.Num
				s.Unlock()
				logrus.Debugf("Added %d to stat %s for %s", stat.Num, stat.Type, stat.Account)
			}
		}
	}(&s, ch)

	return &StatsCollector{Stats: &s, Chan: ch, done: done}
}

// Json returns the current statistics as a JSON byte array
func (s *StatsCollector) Json() ([]byte, error) {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	s.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(s.Stats)
}

// Get returns one counter.
func (s *StatsCollector) Get(account string, typ StatType) uint {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	return s.Stats.Stats[account][typ]
}

// Add is a convenience method to add a number to a statistic. A nil or
// stopped collector discards the stat.
func (s *StatsCollector) Add(account string, typ StatType, num uint) {
	if s == nil {
		return
	}
	select {
	case s.Chan <- AddStat{Account: account, Type: typ, Num: num}:
	case <-s.done:
	}
}

// Stopped is closed once the collector goroutine has exited.
func (s *StatsCollector) Stopped() <-chan struct{} {
	return s.done
}
