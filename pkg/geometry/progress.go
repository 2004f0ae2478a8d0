package geometry

// LoadObserver receives progress notifications during LoadFile. Delivery is
// synchronous and in-order from the loading goroutine; observers that need
// another thread (a UI event loop, a channel) do their own handoff.
type LoadObserver interface {
	// LoadStepStarted is called at the start of each major loading phase
	// with a human-readable description.
	LoadStepStarted(description string)
	// LoadProgress is called with a percentage in [0,100]. Within one
	// load the values are non-decreasing and end at 100 on success.
	LoadProgress(percent int)
}

// ObserverFuncs adapts plain functions to LoadObserver. Either field may be
// nil.
type ObserverFuncs struct {
	StepStarted func(description string)
	Progress    func(percent int)
}

func (o ObserverFuncs) LoadStepStarted(description string) {
	if o.StepStarted != nil {
		o.StepStarted(description)
	}
}

func (o ObserverFuncs) LoadProgress(percent int) {
	if o.Progress != nil {
		o.Progress(percent)
	}
}

// Compile-time interface check.
var _ LoadObserver = ObserverFuncs{}
