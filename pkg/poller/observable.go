package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/btcescrow/escrowd/internal/core/domain"
	"github.com/btcescrow/escrowd/internal/core/ports"
)

const (
	New       Status = "NEW"
	Waiting   Status = "WAITING"
	Processed Status = "PROCESSED"
)

type Status string

type observableStatus struct {
	sync.RWMutex
	status Status
}

func newObservableStatus() *observableStatus {
	return &observableStatus{status: New}
}

func (o *observableStatus) Get() Status {
	o.RLock()
	defer o.RUnlock()
	return o.status
}

func (o *observableStatus) Set(status Status) {
	o.Lock()
	defer o.Unlock()
	o.status = status
}

// TradeFeedObservable polls the relay feed of a single trade. SinceVersion
// is read on every pass so the poll window follows the stored version.
type TradeFeedObservable struct {
	TradeId      string
	SinceVersion func() int64
}

func (t *TradeFeedObservable) Observe(
	relaySvc ports.RelayClient,
	errChan chan error,
	eventChan chan Event,
	status *observableStatus,
	rateLimiter *rate.Limiter,
) {
	if t == nil {
		return
	}

	status.Set(Waiting)
	if err := rateLimiter.Wait(context.Background()); err != nil {
		errChan <- err
		return
	}

	snapshots, err := relaySvc.Get(context.Background(), t.TradeId, t.SinceVersion())
	if err != nil {
		errChan <- err
		return
	}
	status.Set(Processed)

	if len(snapshots) <= 0 {
		return
	}
	sortByVersion(snapshots)
	eventChan <- SnapshotsEvent{TradeId: t.TradeId, Snapshots: snapshots}
}

func (t *TradeFeedObservable) Key() string {
	return t.TradeId
}

// ArbitrateFeedObservable polls the global arbitration feed, used by an
// arbitrator who cannot know trade ids in advance.
type ArbitrateFeedObservable struct {
	SinceVersion func() int64
}

func (a *ArbitrateFeedObservable) Observe(
	relaySvc ports.RelayClient,
	errChan chan error,
	eventChan chan Event,
	status *observableStatus,
	rateLimiter *rate.Limiter,
) {
	if a == nil {
		return
	}

	status.Set(Waiting)
	if err := rateLimiter.Wait(context.Background()); err != nil {
		errChan <- err
		return
	}

	snapshots, err := relaySvc.GetArbitrate(context.Background(), a.SinceVersion())
	if err != nil {
		errChan <- err
		return
	}
	status.Set(Processed)

	if len(snapshots) <= 0 {
		return
	}
	sortByVersion(snapshots)
	eventChan <- SnapshotsEvent{Arbitrate: true, Snapshots: snapshots}
}

func (a *ArbitrateFeedObservable) Key() string {
	return "arbitrate"
}

// Batches are reduced sequentially, so causal ordering within a trade only
// needs the versions sorted ascending.
func sortByVersion(snapshots []*domain.Trade) {
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Version < snapshots[j].Version
	})
}

type observableHandler struct {
	observable  Observable
	relaySvc    ports.RelayClient
	wg          *sync.WaitGroup
	ticker      *time.Ticker
	eventChan   chan Event
	errChan     chan error
	stopChan    chan int
	status      *observableStatus
	rateLimiter *rate.Limiter
}

func newObservableHandler(
	observable Observable,
	relaySvc ports.RelayClient,
	wg *sync.WaitGroup,
	interval time.Duration,
	eventChan chan Event,
	errChan chan error,
	rateLimiter *rate.Limiter,
) *observableHandler {
	return &observableHandler{
		observable:  observable,
		relaySvc:    relaySvc,
		wg:          wg,
		ticker:      time.NewTicker(interval),
		eventChan:   eventChan,
		errChan:     errChan,
		stopChan:    make(chan int, 1),
		status:      newObservableStatus(),
		rateLimiter: rateLimiter,
	}
}

func (oh *observableHandler) start() {
	log.Debugf("start observing feed: %v", oh.observable.Key())
	oh.wg.Add(1)
	for {
		select {
		case <-oh.ticker.C:
			if oh.status.Get() != Waiting {
				oh.observable.Observe(
					oh.relaySvc,
					oh.errChan,
					oh.eventChan,
					oh.status,
					oh.rateLimiter,
				)
			}
		case <-oh.stopChan:
			oh.ticker.Stop()
			close(oh.stopChan)
			return
		}
	}
}

func (oh *observableHandler) stop() {
	log.Debugf("stop observing feed: %v", oh.observable.Key())
	oh.stopChan <- 1
	oh.wg.Done()
}
