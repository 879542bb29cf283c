package matchmaking

// Queue is the FIFO list of connections waiting for an opponent. It holds connection ids
// only; sessions are resolved from the registry at pairing time. Queue is not safe for
// concurrent use: the lifecycle controller serializes every call.
type Queue struct {
	entries []string
	index   map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Enqueue appends connID at the tail. It returns false, changing nothing, when connID is
// already waiting.
func (q *Queue) Enqueue(connID string) bool {
	if _, ok := q.index[connID]; ok {
		return false
	}
	q.entries = append(q.entries, connID)
	q.index[connID] = struct{}{}
	return true
}

// Remove drops connID from the queue if present.
func (q *Queue) Remove(connID string) bool {
	if _, ok := q.index[connID]; !ok {
		return false
	}
	delete(q.index, connID)
	for i, id := range q.entries {
		if id == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) Contains(connID string) bool {
	_, ok := q.index[connID]
	return ok
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Snapshot returns the waiting connection ids, head first.
func (q *Queue) Snapshot() []string {
	out := make([]string, len(q.entries))
	copy(out, q.entries)
	return out
}

// popPair removes and returns the two oldest entries.
func (q *Queue) popPair() (string, string) {
	first, second := q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	delete(q.index, first)
	delete(q.index, second)
	return first, second
}

// pushFront puts connID back at the head, keeping its place in line.
func (q *Queue) pushFront(connID string) {
	if _, ok := q.index[connID]; ok {
		return
	}
	q.entries = append([]string{connID}, q.entries...)
	q.index[connID] = struct{}{}
}
