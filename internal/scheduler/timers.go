package scheduler

import (
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/go-co-op/gocron"
)

// Timers is the recurring-timer backend of a Scheduler. Every starts calling
// tick every interval, first after one full interval, until cancel is called.
// tick must return quickly; the Scheduler runs callbacks on their own goroutine.
type Timers interface {
	Every(id string, interval time.Duration, tick func()) (cancel func(), err error)
	Stop()
}

// CronTimers runs per-location jobs on a gocron scheduler.
type CronTimers struct {
	// gocron builds jobs through a chained, non-reentrant API.
	mu   sync.Mutex
	cron *gocron.Scheduler
}

// NewCronTimers creates and starts a gocron-backed timer set.
func NewCronTimers(loc *time.Location) *CronTimers {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.StartAsync()
	return &CronTimers{cron: s}
}

func (c *CronTimers) Every(id string, interval time.Duration, tick func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := c.cron.Every(interval).WaitForSchedule().Tag(id).Do(tick)
	if err != nil {
		return nil, fmt.Errorf("gocron: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.cron.RemoveByReference(job)
		})
	}, nil
}

// Len returns the number of jobs known to gocron.
func (c *CronTimers) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cron.Len()
}

func (c *CronTimers) Stop() {
	c.cron.Stop()
}

// ClockTimers drives each schedule with a ticker from a clock.Clock. With a
// fakeclock it makes the scheduler fully deterministic.
type ClockTimers struct {
	clock clock.Clock

	mu      sync.Mutex
	tickers map[*clockTicker]struct{}
}

type clockTicker struct {
	ticker clock.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *clockTicker) stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// NewClockTimers creates a timer set on clk; nil means the wall clock.
func NewClockTimers(clk clock.Clock) *ClockTimers {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &ClockTimers{
		clock:   clk,
		tickers: make(map[*clockTicker]struct{}),
	}
}

func (c *ClockTimers) Every(id string, interval time.Duration, tick func()) (func(), error) {
	t := &clockTicker{
		ticker: c.clock.NewTicker(interval),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.tickers[t] = struct{}{}
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C():
				tick()
			}
		}
	}()

	return func() {
		c.mu.Lock()
		delete(c.tickers, t)
		c.mu.Unlock()
		t.stop()
	}, nil
}

// Len returns the number of running tickers.
func (c *ClockTimers) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *ClockTimers) Stop() {
	c.mu.Lock()
	tickers := c.tickers
	c.tickers = make(map[*clockTicker]struct{})
	c.mu.Unlock()

	for t := range tickers {
		t.stop()
	}
}
