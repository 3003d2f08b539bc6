package of

// Runner starts a function according to some concurrency policy.
type Runner interface {
	Run(func())
}

// OnDemandRoutineRunner starts each function in its own goroutine.
// It is simple but gives no bound on the number of goroutines in
// flight; cmd/ofswitch uses it to start the per-port receive
// goroutines and the datapath goroutine.
type OnDemandRoutineRunner struct{}

// Run implements Runner interface.
func (OnDemandRoutineRunner) Run(fn func()) { go fn() }

// SequentialRunner runs each function to completion before starting
// the next, which makes the order of execution deterministic.
type SequentialRunner struct{}

// Run implements Runner interface.
func (SequentialRunner) Run(fn func()) { fn() }
