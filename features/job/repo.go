package job

// memoryRepo holds every job in per-kind FIFO queues. Kinds are kept in the
// order they were first seen, which is also the scan order for the next
// pending job. It is not safe for concurrent use; Processor guards it.
type memoryRepo struct {
	order  []Kind
	queues map[Kind][]*Job
	byID   map[string]*Job
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		queues: make(map[Kind][]*Job),
		byID:   make(map[string]*Job),
	}
}

func (r *memoryRepo) add(j *Job) {
	if _, ok := r.queues[j.Kind]; !ok {
		r.order = append(r.order, j.Kind)
	}
	r.queues[j.Kind] = append(r.queues[j.Kind], j)
	r.byID[j.ID] = j
}

func (r *memoryRepo) get(id string) (*Job, bool) {
	j, ok := r.byID[id]
	return j, ok
}

// nextPending returns the oldest pending job of the first kind, in
// first-seen order, that has one.
func (r *memoryRepo) nextPending() *Job {
	for _, k := range r.order {
		for _, j := range r.queues[k] {
			if j.Status == StatusPending {
				return j
			}
		}
	}
	return nil
}

func (r *memoryRepo) list(kind Kind) []*Job {
	if kind != "" {
		return r.queues[kind]
	}
	var out []*Job
	for _, k := range r.order {
		out = append(out, r.queues[k]...)
	}
	return out
}

func (r *memoryRepo) countByStatus(s Status) int {
	n := 0
	for _, j := range r.byID {
		if j.Status == s {
			n++
		}
	}
	return n
}

func (r *memoryRepo) status() map[Kind]KindStatus {
	out := make(map[Kind]KindStatus, len(r.order))
	for _, k := range r.order {
		var ks KindStatus
		for _, j := range r.queues[k] {
			ks.Total++
			switch j.Status {
			case StatusPending:
				ks.Pending++
			case StatusProcessing:
				ks.Processing++
			case StatusCompleted:
				ks.Completed++
			case StatusFailed:
				ks.Failed++
			}
		}
		out[k] = ks
	}
	return out
}

// clearCompleted drops completed jobs and reports how many were removed.
// Kinds stay registered so scan order is stable.
func (r *memoryRepo) clearCompleted() int {
	removed := 0
	for _, k := range r.order {
		q := r.queues[k]
		kept := q[:0]
		for _, j := range q {
			if j.Status == StatusCompleted {
				delete(r.byID, j.ID)
				removed++
				continue
			}
			kept = append(kept, j)
		}
		clear(q[len(kept):])
		r.queues[k] = kept
	}
	return removed
}
