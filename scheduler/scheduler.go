// Package scheduler runs compiled pipelines. One scheduler owns one
// pinned core and round-robins its registered tasks, each visit driving
// one burst through a pipeline; control arrives over a rendezvous
// channel and is only examined between iterations.
package scheduler

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/netsys-io/netbricks/port"
)

// Task is one schedulable pipeline: each RunOnce processes at most one
// burst and returns control.
type Task interface {
	RunOnce()
}

// releaser is implemented by tasks holding frames across ticks (send
// sinks); the scheduler releases them on shutdown.
type releaser interface {
	Release()
}

// PipelineFactory builds a pipeline on a core, given the RX queues
// assigned to it, and registers the resulting tasks on the scheduler.
type PipelineFactory func(rxqs []*port.PortQueue, s *Scheduler)

type commandKind int

const (
	cmdRun commandKind = iota
	cmdExecute
	cmdShutdown
)

// Command is a control message for a scheduler.
type Command struct {
	kind    commandKind
	factory PipelineFactory
}

// RunCommand asks the scheduler to construct a pipeline.
func RunCommand(factory PipelineFactory) Command {
	return Command{kind: cmdRun, factory: factory}
}

// ExecuteCommand asks the scheduler to enter its run loop.
func ExecuteCommand() Command { return Command{kind: cmdExecute} }

// ShutdownCommand asks the scheduler to exit cleanly.
func ShutdownCommand() Command { return Command{kind: cmdShutdown} }

// Scheduler drives the tasks of one core cooperatively. Nothing preempts
// a task; a misbehaving task stalls its core and nothing else.
type Scheduler struct {
	core  int
	tasks []Task
	// informational producer dependencies per task; round-robin order
	// is what actually bounds latency
	deps    [][]int
	ctrl    <-chan Command
	rxqs    []*port.PortQueue
	loops   atomic.Uint64
	started atomic.Bool
	log     *logrus.Entry
}

// New creates a scheduler for a core, fed control over ctrl. The channel
// must be unbuffered: senders rendezvous with the scheduler.
func New(core int, rxqs []*port.PortQueue, ctrl <-chan Command) *Scheduler {
	return &Scheduler{
		core: core,
		ctrl: ctrl,
		rxqs: rxqs,
		log:  logrus.WithField("core", core),
	}
}

// AddTask registers a pipeline root. Tasks run in registration order.
// Returns the task's index.
func (s *Scheduler) AddTask(t Task) int {
	s.tasks = append(s.tasks, t)
	s.deps = append(s.deps, nil)
	return len(s.tasks) - 1
}

// AddTaskWithDependencies registers a task and records the producer tasks
// feeding it. The dependencies are informational.
func (s *Scheduler) AddTaskWithDependencies(t Task, producers []int) int {
	idx := s.AddTask(t)
	s.deps[idx] = append([]int(nil), producers...)
	return idx
}

// NumTasks reports the registered task count.
func (s *Scheduler) NumTasks() int { return len(s.tasks) }

// Iterations reports completed run-loop rounds.
func (s *Scheduler) Iterations() uint64 { return s.loops.Load() }

// Running reports whether the run loop has been entered.
func (s *Scheduler) Running() bool { return s.started.Load() }

// HandleRequests serves the control channel until shutdown. Called on the
// scheduler's pinned thread.
func (s *Scheduler) HandleRequests() {
	for cmd := range s.ctrl {
		switch cmd.kind {
		case cmdRun:
			cmd.factory(s.rxqs, s)
			s.log.WithField("tasks", len(s.tasks)).Debug("pipeline installed")
		case cmdExecute:
			s.log.Info("scheduler executing")
			if s.execute() {
				s.shutdown()
				return
			}
		case cmdShutdown:
			s.shutdown()
			return
		}
	}
	s.shutdown()
}

// execute runs the scheduling loop until a shutdown command arrives.
// Returns true when the loop should stop for good.
func (s *Scheduler) execute() bool {
	s.started.Store(true)
	for {
		for _, t := range s.tasks {
			t.RunOnce()
		}
		s.loops.Add(1)

		// drain control between iterations; per-burst work is small
		// enough to make this check frequent
		select {
		case cmd, ok := <-s.ctrl:
			if !ok {
				return true
			}
			switch cmd.kind {
			case cmdRun:
				cmd.factory(s.rxqs, s)
			case cmdShutdown:
				return true
			case cmdExecute:
				// already executing
			}
		default:
		}
	}
}

// shutdown releases frames still held by tasks.
func (s *Scheduler) shutdown() {
	for _, t := range s.tasks {
		if r, ok := t.(releaser); ok {
			r.Release()
		}
	}
	s.started.Store(false)
	s.log.Info("scheduler shut down")
}
