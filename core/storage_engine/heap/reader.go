package heap

// Reader fetches records for a single query and counts the distinct data
// blocks the query touched. Blocks are decoded through the heap's block
// cache.
type Reader struct {
	heap    *Heap
	touched map[uint32]struct{}
}

// NewReader starts a fresh block count.
func (h *Heap) NewReader() *Reader {
	return &Reader{heap: h, touched: make(map[uint32]struct{})}
}

// Get returns the record at handle and marks its block as accessed.
func (r *Reader) Get(handle RecordHandle) (Record, error) {
	if _, err := r.heap.lookup(handle); err != nil {
		return Record{}, err
	}
	r.touched[handle.Block] = struct{}{}
	return r.heap.view(handle.Block).records[handle.Slot], nil
}

// GetAll resolves handles in order, stopping at the first invalid one.
func (r *Reader) GetAll(handles []RecordHandle) ([]Record, error) {
	out := make([]Record, 0, len(handles))
	for _, h := range handles {
		rec, err := r.Get(h)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// BlocksAccessed returns the number of distinct blocks read so far.
func (r *Reader) BlocksAccessed() int { return len(r.touched) }
