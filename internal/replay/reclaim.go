package replay

import "siro-hitl/client/internal/async"

// reclaimer batches requests to free unused resources. A request made during
// a frame starts one pass on the next Update; requests made while a pass is
// running queue exactly one follow-up pass.
type reclaimer struct {
	requested bool
	running   async.Operation[int]
	passes    int
}

func (r *reclaimer) schedule() {
	r.requested = true
}

// update reports whether a pass finished during this call.
func (r *reclaimer) update(start func() async.Operation[int]) (freed int, finished bool) {
	if r.running != nil {
		if !r.running.Done() {
			return 0, false
		}
		freed, _ = r.running.Result()
		r.running.Release()
		r.running = nil
		finished = true
	}
	if r.requested && r.running == nil {
		r.requested = false
		r.passes++
		r.running = start()
	}
	return freed, finished
}

func (r *reclaimer) pending() bool {
	return r.requested || r.running != nil
}
