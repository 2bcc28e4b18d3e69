package raid

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/holyroller/holyroller/internal/infra"
)

const defaultResponseTimeout = 2 * time.Minute

// AsyncResponder runs the wrapped responder in the background so a slow response
// does not hold up the guild's event queue. Stop waits for running responses.
type AsyncResponder struct {
	next    Responder
	timeout time.Duration

	runMutex sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewAsyncResponder(next Responder) *AsyncResponder {
	return &AsyncResponder{next: next, timeout: defaultResponseTimeout}
}

func (a *AsyncResponder) Start(ctx context.Context) error {
	a.runMutex.Lock()
	defer a.runMutex.Unlock()
	if a.cancel != nil {
		return nil
	}
	// responses outlive the event that triggered them, but not the process
	a.baseCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return nil
}

func (a *AsyncResponder) Execute(_ context.Context, guildID string, joins []JoinEvent) {
	a.runMutex.Lock()
	base := a.baseCtx
	if base == nil {
		base = context.Background()
	}
	a.wg.Add(1)
	a.runMutex.Unlock()

	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(base, a.timeout)
		defer cancel()
		infra.Recover("raid_response_"+guildID, func() {
			a.next.Execute(ctx, guildID, joins)
		})
	}()
}

func (a *AsyncResponder) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.WithField("component", "raid_responder").Warn("stopping with raid responses in flight")
	}

	a.runMutex.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	// late responses run detached instead of on the cancelled base
	a.baseCtx = nil
	a.runMutex.Unlock()
	return nil
}
