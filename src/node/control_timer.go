package node

import (
	"time"
)

// timerFactory returns a channel that fires once after d.
type timerFactory func(d time.Duration) <-chan time.Time

// tickerFactory returns a channel that fires every d, and a function to stop
// it.
type tickerFactory func(d time.Duration) (<-chan time.Time, func())

func defaultTimerFactory(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func defaultTickerFactory(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
