package staging

// memoryStore keeps the mirror in process memory.
type memoryStore struct {
	batch *stagedBatch
}

func (m *memoryStore) Load() (*stagedBatch, error) {
	if m.batch == nil {
		return nil, nil
	}
	b := *m.batch
	return &b, nil
}

func (m *memoryStore) Save(b *stagedBatch) error {
	cp := *b
	m.batch = &cp
	return nil
}

func (m *memoryStore) Clear() error {
	m.batch = nil
	return nil
}
