// Package ratelimit paces requests against the remote API: a short
// think-time delay after every operation, and a longer batch sleep every N
// successful operations.
package ratelimit

import (
	"fmt"
	"math/rand"
	"time"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/logger"
)

// Delay is either a fixed duration (Min == Max) or a uniformly sampled
// [Min, Max] range.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Fixed returns a constant delay.
func Fixed(d time.Duration) Delay {
	return Delay{Min: d, Max: d}
}

// Between returns a uniformly sampled delay range.
func Between(min, max time.Duration) Delay {
	return Delay{Min: min, Max: max}
}

// Sample draws a duration from the delay.
func (d Delay) Sample() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)))
}

func (d Delay) valid() bool {
	return d.Min >= 0 && d.Min <= d.Max
}

// Pacer owns both delay mechanisms for one session. Sessions are
// single-threaded, so Pacer is not safe for concurrent use.
type Pacer struct {
	interOp   Delay
	longSleep Delay
	batchSize int
	completed int
	log       logger.Logger
}

// NewPacer builds a pacer. Invalid bounds are rejected here rather than
// surfacing mid-crawl.
func NewPacer(interOp, longSleep Delay, batchSize int, log logger.Logger) (*Pacer, error) {
	if !interOp.valid() {
		return nil, fmt.Errorf("invalid inter-operation delay [%s, %s]", interOp.Min, interOp.Max)
	}
	if !longSleep.valid() {
		return nil, fmt.Errorf("invalid long-sleep delay [%s, %s]", longSleep.Min, longSleep.Max)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pacer{
		interOp:   interOp,
		longSleep: longSleep,
		batchSize: batchSize,
		log:       log,
	}, nil
}

// Pause applies the inter-operation think-time delay. Returns false if the
// wait was cut short by the stop token.
func (p *Pacer) Pause(tok *clock.Token) bool {
	d := p.interOp.Sample()
	p.log.DebugWithFields("inter-request delay", map[string]interface{}{
		"delay": d,
	})
	return clock.Sleep(tok, d)
}

// OperationDone records one successful operation (page stored or file
// downloaded) and fires the batch long-sleep every batchSize operations.
// The batch counter resets to zero after firing. Returns false if a sleep
// was interrupted by the stop token.
func (p *Pacer) OperationDone(tok *clock.Token) bool {
	p.completed++
	if p.completed%p.batchSize != 0 {
		return true
	}
	d := p.longSleep.Sample()
	p.completed = 0
	p.log.InfoWithFields("batch long-sleep", map[string]interface{}{
		"sleep":      d,
		"batch_size": p.batchSize,
		"resume_at":  time.Now().Add(d).Format("15:04:05"),
	})
	ok := clock.Sleep(tok, d)
	if ok {
		p.log.Debug("long-sleep finished, resuming")
	}
	return ok
}

// Completed returns the operations counted since the last long-sleep.
func (p *Pacer) Completed() int {
	return p.completed
}
