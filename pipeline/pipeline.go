// Package pipeline wires raw beacon lines through parse, dedup,
// classification, and scoring on a single worker goroutine, decoupling
// network latency from the consumer. Lines enter through a bounded queue
// with drop-oldest overflow, since a spot's relevance decays with age.
package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"skccspotter/buffer"
	"skccspotter/dedup"
	"skccspotter/eligibility"
	"skccspotter/rbn"
	"skccspotter/roster"
	"skccspotter/spot"
)

// stopJoinWindow bounds how long Stop waits for the worker to exit.
const stopJoinWindow = 2 * time.Second

// defaultPruneInterval is how often the dedup gate is pruned.
const defaultPruneInterval = time.Minute

// item is one unit of worker input, either a raw line or a client state
// change, so subscriber callbacks always run on the worker in arrival
// order.
type item struct {
	line    string
	state   rbn.State
	isState bool
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Received   uint64
	Parsed     uint64
	Rejected   uint64
	Duplicates uint64
	Busted     uint64
	Emitted    uint64
	Dropped    uint64
}

// Options holds the pipeline's collaborators and tuning.
type Options struct {
	Gate       *dedup.Gate
	Classifier *roster.Classifier
	Scorer     *eligibility.Scorer
	Ring       *buffer.EventRing
	Logger     *log.Logger

	QueueSize     int           // default 256
	PruneInterval time.Duration // default 1 min
	Now           func() time.Time
}

// Pipeline runs the spot processing worker.
type Pipeline struct {
	opts  Options
	queue chan item
	now   func() time.Time

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	spotSubs  []func(eligibility.SpotEvent)
	stateSubs []func(rbn.State)

	received   atomic.Uint64
	parsed     atomic.Uint64
	rejected   atomic.Uint64
	duplicates atomic.Uint64
	busted     atomic.Uint64
	emitted    atomic.Uint64
	dropped    atomic.Uint64
}

// New builds a Pipeline. Gate, Classifier, and Scorer must be set; Ring and
// Logger are optional.
func New(opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Pipeline{
		opts:  opts,
		queue: make(chan item, opts.QueueSize),
		now:   opts.Now,
	}
}

// SubscribeSpots registers a callback for emitted spot events. Callbacks
// run on the worker goroutine and must return quickly.
func (p *Pipeline) SubscribeSpots(fn func(eligibility.SpotEvent)) {
	p.mu.Lock()
	p.spotSubs = append(p.spotSubs, fn)
	p.mu.Unlock()
}

// SubscribeState registers a callback for connection state changes,
// delivered on the worker goroutine.
func (p *Pipeline) SubscribeState(fn func(rbn.State)) {
	p.mu.Lock()
	p.stateSubs = append(p.stateSubs, fn)
	p.mu.Unlock()
}

// HandleLine enqueues a raw line from the network client. When the queue is
// full the oldest entry is discarded to make room.
func (p *Pipeline) HandleLine(line string) {
	p.received.Add(1)
	p.enqueue(item{line: line})
}

// HandleState enqueues a connection state change.
func (p *Pipeline) HandleState(s rbn.State) {
	p.enqueue(item{state: s, isState: true})
}

func (p *Pipeline) enqueue(it item) {
	select {
	case p.queue <- it:
		return
	default:
	}
	// Queue full: drop the oldest entry and retry once.
	select {
	case old := <-p.queue:
		if !old.isState {
			p.dropped.Add(1)
		}
	default:
	}
	select {
	case p.queue <- it:
	default:
		if !it.isState {
			p.dropped.Add(1)
		}
	}
}

// Start launches the worker. Safe to call once per pipeline lifetime.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()

	go p.run(stop, done)
}

// Stop signals the worker and waits up to the join window for it to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopJoinWindow):
		p.opts.Logger.Printf("pipeline: worker did not stop within %v", stopJoinWindow)
	}
}

func (p *Pipeline) run(stop, done chan struct{}) {
	defer close(done)

	prune := time.NewTicker(p.opts.PruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-stop:
			return
		case <-prune.C:
			p.opts.Gate.Prune(p.now())
		case it := <-p.queue:
			if it.isState {
				p.notifyState(it.state)
			} else {
				p.process(it.line)
			}
		}
	}
}

func (p *Pipeline) process(line string) {
	now := p.now()

	sp, ok := spot.ParseLine(line, now)
	if !ok {
		p.rejected.Add(1)
		return
	}
	p.parsed.Add(1)

	freqKHz := sp.FrequencyMHz * 1000

	if p.opts.Gate.SeenHash(sp.Hash32(), now) {
		p.duplicates.Add(1)
		return
	}
	if !p.opts.Gate.ShouldEmit(sp.Callsign, now) {
		p.duplicates.Add(1)
		return
	}
	if p.opts.Gate.LooksBusted(sp.Callsign, sp.FrequencyMHz, now) {
		p.busted.Add(1)
		p.opts.Logger.Printf("pipeline: suppressed likely busted call %s on %.1f kHz",
			sp.Callsign, freqKHz)
		return
	}

	member, isMember, goal := p.opts.Classifier.Classify(sp.Callsign)
	sp.IsMember = isMember
	if isMember {
		sp.MemberNumber = member.Number + member.Suffix
	}

	level, reasons := p.opts.Scorer.Score(sp)
	if isMember && goal == roster.GoalNeeded {
		reasons = append(reasons, "on current goal list")
	}

	// Record only now: spots rejected above never start a cooldown.
	p.opts.Gate.Record(sp.Callsign, sp.FrequencyMHz, now)

	ev := eligibility.SpotEvent{Spot: sp, Level: level, Reasons: reasons}
	if p.opts.Ring != nil {
		p.opts.Ring.Add(&ev)
	}
	p.emitted.Add(1)
	p.notifySpot(ev)
}

func (p *Pipeline) notifySpot(ev eligibility.SpotEvent) {
	p.mu.Lock()
	subs := append(([]func(eligibility.SpotEvent))(nil), p.spotSubs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (p *Pipeline) notifyState(s rbn.State) {
	p.mu.Lock()
	subs := append(([]func(rbn.State))(nil), p.stateSubs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   p.received.Load(),
		Parsed:     p.parsed.Load(),
		Rejected:   p.rejected.Load(),
		Duplicates: p.duplicates.Load(),
		Busted:     p.busted.Load(),
		Emitted:    p.emitted.Load(),
		Dropped:    p.dropped.Load(),
	}
}
