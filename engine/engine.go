package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/canon-abi/task"
)

// Config carries the deterministic choices the canonical ABI leaves open.
type Config struct {
	// RetainDebugMessages keeps the debug string attached to error
	// contexts. A conforming embedder may discard diagnostic content for
	// any reason; pinning the choice here keeps test runs reproducible.
	RetainDebugMessages bool

	// OnTrap receives traps raised on engine-spawned goroutines, where no
	// caller is left to return them to. Nil logs through Logger.
	OnTrap func(err error)
}

// DefaultConfig retains diagnostic content.
func DefaultConfig() Config {
	return Config{RetainDebugMessages: true}
}

// Engine owns the cooperative scheduler shared by its component
// instances. All guest code invoked through the engine runs while holding
// the scheduler permit; blocking operations release it and reacquire it on
// wake.
type Engine struct {
	sched *task.Scheduler
	cfg   Config
}

func New(cfg Config) *Engine {
	return &Engine{
		sched: task.NewScheduler(),
		cfg:   cfg,
	}
}

// Scheduler exposes the permit so embedders can bracket host-initiated
// calls with Acquire/Release.
func (e *Engine) Scheduler() *task.Scheduler {
	return e.sched
}

func (e *Engine) trap(err error) {
	if e.cfg.OnTrap != nil {
		e.cfg.OnTrap(err)
		return
	}
	Logger().Error("trap on engine goroutine", zap.Error(err))
}
