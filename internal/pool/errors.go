package pool

// Terminated is returned by Call/acquire when the pool has been (or is
// being) shut down: a parked caller is rejected, or a new call arrives
// after Terminate. Its message is exactly "worker terminate".
type Terminated struct{}

func (e *Terminated) Error() string { return "worker terminate" }
