package poller

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/btcescrow/escrowd/internal/core/ports"
)

const (
	eventQueueMaxSize = 100
	errorQueueMaxSize = 10
)

type feedPoller struct {
	interval     time.Duration
	relaySvc     ports.RelayClient
	errChan      chan error
	eventChan    chan Event
	observables  map[string]*observableHandler
	errorHandler func(err error)
	rateLimiter  *rate.Limiter
	mutex        *sync.RWMutex
	wg           *sync.WaitGroup
}

// Opts defines the parameters needed for creating a poller service with
// NewService.
type Opts struct {
	RelaySvc          ports.RelayClient
	Interval          time.Duration
	RequestsPerSecond int
	ErrorHandler      func(err error)
}

// NewService returns a feed poller ready to watch relay feeds. Use Start and
// Stop to manage it.
func NewService(opts Opts) Service {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &feedPoller{
		interval:     opts.Interval,
		relaySvc:     opts.RelaySvc,
		errChan:      make(chan error, errorQueueMaxSize),
		eventChan:    make(chan Event, eventQueueMaxSize),
		observables:  map[string]*observableHandler{},
		errorHandler: opts.ErrorHandler,
		rateLimiter:  rate.NewLimiter(rate.Limit(rps), rps),
		mutex:        &sync.RWMutex{},
		wg:           &sync.WaitGroup{},
	}
}

// Start runs the error pump. Observables keep their own tickers, so this
// only returns once Stop closes the error channel.
func (p *feedPoller) Start() {
	for err := range p.errChan {
		go p.errorHandler(err)
	}
}

// Stop stops all feed tickers and shuts the service down.
func (p *feedPoller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, obsHandler := range p.observables {
		go obsHandler.stop()
	}
	p.wg.Wait()
	p.eventChan <- QuitEvent{}
	close(p.errChan)
}

// GetEventChannel returns the channel snapshot events are delivered on.
func (p *feedPoller) GetEventChannel() chan Event {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.eventChan
}

// AddObservable starts watching the given feed unless already watched.
func (p *feedPoller) AddObservable(observable Observable) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.observables[observable.Key()]; !ok {
		obsHandler := newObservableHandler(
			observable,
			p.relaySvc,
			p.wg,
			p.interval,
			p.eventChan,
			p.errChan,
			p.rateLimiter,
		)

		p.observables[observable.Key()] = obsHandler
		go obsHandler.start()
	}
}

// RemoveObservable stops watching the given feed.
func (p *feedPoller) RemoveObservable(observable Observable) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if obsHandler, ok := p.observables[observable.Key()]; ok {
		obsHandler.stop()
		delete(p.observables, observable.Key())
	}
}
