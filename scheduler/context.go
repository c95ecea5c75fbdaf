package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/netsys-io/netbricks/config"
	"github.com/netsys-io/netbricks/mbuf"
	"github.com/netsys-io/netbricks/port"
)

// Context owns the process-wide runtime: the mbuf pool, the opened
// ports, the per-core queue assignments and the scheduler threads. It is
// built once at startup from the configuration and passed around
// explicitly.
type Context struct {
	Pool        *mbuf.Pool
	Ports       map[string]port.Port
	RxQueues    map[int][]*port.PortQueue
	ActiveCores []int
	Metrics     *port.StatsCollector

	channels map[int]chan Command
	scheds   map[int]*Scheduler
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// Initialize opens every configured port and assigns queue pairs to
// cores. Any failure here is fatal to startup.
func Initialize(cfg *config.RuntimeConfig) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := &Context{
		Pool:     mbuf.NewPool(cfg.PoolSize, mbuf.DefaultFrameSize),
		Ports:    make(map[string]port.Port),
		RxQueues: make(map[int][]*port.PortQueue),
		Metrics:  port.NewStatsCollector(),
		channels: make(map[int]chan Command),
		scheds:   make(map[int]*Scheduler),
		log:      logrus.WithField("name", cfg.Name),
	}

	for _, pc := range cfg.Ports {
		if _, dup := ctx.Ports[pc.Name]; dup {
			return nil, fmt.Errorf("port %s appears twice in specification", pc.Name)
		}
		p, err := ctx.openPort(pc)
		if err != nil {
			return nil, fmt.Errorf("port %s could not be initialized: %w", pc.Name, err)
		}
		ctx.Ports[pc.Name] = p
		ctx.Metrics.Add(p)

		for rxq, core := range pc.RxQueues {
			q, err := p.Queue(rxq, rxq)
			if err != nil {
				return nil, fmt.Errorf("queue %d on port %s could not be initialized: %w", rxq, pc.Name, err)
			}
			ctx.RxQueues[core] = append(ctx.RxQueues[core], q)
		}
	}

	cores := make(map[int]bool)
	for _, c := range cfg.Cores {
		cores[c] = true
	}
	for c := range ctx.RxQueues {
		cores[c] = true
	}
	for c := range cores {
		ctx.ActiveCores = append(ctx.ActiveCores, c)
	}
	return ctx, nil
}

// openPort selects a backend by name.
func (ctx *Context) openPort(pc config.PortConfig) (port.Port, error) {
	switch {
	case pc.Name == "null":
		return port.NewNullPort(pc.Name), nil
	case pc.Name == "loopback" || pc.Loopback:
		return port.NewLoopbackPort(pc.Name), nil
	case strings.HasPrefix(pc.Name, "virtual"):
		a, _ := port.NewVirtualPortPair(pc.Name, pc.Name+"-peer")
		return a, nil
	case strings.HasPrefix(pc.Name, "xdp:"):
		return ctx.openXdpPort(strings.TrimPrefix(pc.Name, "xdp:"))
	default:
		return nil, fmt.Errorf("unknown port backend %q", pc.Name)
	}
}

// StartSchedulers spawns one pinned scheduler per active core.
func (ctx *Context) StartSchedulers() {
	for _, core := range ctx.ActiveCores {
		ctx.startScheduler(core)
	}
}

func (ctx *Context) startScheduler(core int) {
	ch := make(chan Command) // rendezvous
	ctx.channels[core] = ch
	sched := New(core, ctx.RxQueues[core], ch)
	ctx.scheds[core] = sched

	ctx.wg.Add(1)
	go func() {
		defer ctx.wg.Done()
		if err := pinThread(core); err != nil {
			ctx.log.WithError(err).WithField("core", core).Warn("CPU affinity failed")
		}
		sched.HandleRequests()
	}()
}

// AddPipeline installs a pipeline on every scheduler. The factory runs
// on each scheduler's own thread with that core's RX queues.
func (ctx *Context) AddPipeline(run PipelineFactory) {
	for _, ch := range ctx.channels {
		ch <- RunCommand(run)
	}
}

// Execute starts all run loops.
func (ctx *Context) Execute() {
	for core, ch := range ctx.channels {
		ch <- ExecuteCommand()
		ctx.log.WithField("core", core).Info("starting scheduler")
	}
}

// Shutdown stops every scheduler and waits for the threads to exit.
func (ctx *Context) Shutdown() {
	for _, ch := range ctx.channels {
		close(ch)
	}
	ctx.wg.Wait()
	for _, p := range ctx.Ports {
		if c, ok := p.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// Scheduler returns the scheduler of a core, for inspection.
func (ctx *Context) Scheduler(core int) *Scheduler { return ctx.scheds[core] }
