package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Memory is an in-memory Adapter with the same optimistic-transaction
// semantics as Dynamo. It backs unit tests and RUN_LOCAL mode.
type Memory struct {
	mu          sync.Mutex
	tables      map[string]map[string]Item
	maxAttempts int
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		tables:      map[string]map[string]Item{},
		maxAttempts: defaultTxAttempts,
	}
}

func (m *Memory) NewID() string { return uuid.NewString() }

func (m *Memory) Get(ctx context.Context, key Key, out interface{}) error {
	m.mu.Lock()
	item := m.lookup(key)
	m.mu.Unlock()
	if item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", key.Table, key.ID, err)
	}
	return nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		tx := &memTx{m: m, reads: map[Key]int64{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if m.commit(tx) {
			return nil
		}
	}
	return ErrTooManyConflicts
}

// Seed installs a document directly, bypassing transactions. Test setup only.
func (m *Memory) Seed(key Key, doc interface{}) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", key.Table, key.ID, err)
	}
	item["id"] = &types.AttributeValueMemberS{Value: key.ID}
	if _, ok := item[VersionAttr]; !ok {
		item[VersionAttr] = &types.AttributeValueMemberN{Value: "1"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(key.Table)
	m.tables[key.Table][key.ID] = item
	return nil
}

// SeedRaw installs a raw attribute map directly. Lets tests plant documents
// with malformed fields that typed marshaling could never produce.
func (m *Memory) SeedRaw(key Key, item Item) {
	copied := Item{}
	for k, v := range item {
		copied[k] = v
	}
	copied["id"] = &types.AttributeValueMemberS{Value: key.ID}
	if _, ok := copied[VersionAttr]; !ok {
		copied[VersionAttr] = &types.AttributeValueMemberN{Value: "1"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(key.Table)
	m.tables[key.Table][key.ID] = copied
}

// Delete removes a document directly, bypassing transactions. Test setup
// only: the engine itself never deletes documents.
func (m *Memory) Delete(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tbl, ok := m.tables[key.Table]; ok {
		delete(tbl, key.ID)
	}
}

// Raw returns the stored attribute map for assertions, or nil when absent.
func (m *Memory) Raw(key Key) Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key)
}

func (m *Memory) ensureTable(table string) {
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = map[string]Item{}
	}
}

func (m *Memory) lookup(key Key) Item {
	tbl, ok := m.tables[key.Table]
	if !ok {
		return nil
	}
	return tbl[key.ID]
}

// commit validates every version the body observed and applies the staged
// writes under one lock. Returns false when the body must be re-run.
func (m *Memory) commit(tx *memTx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, version := range tx.reads {
		if itemVersion(m.lookup(key)) != version {
			return false
		}
	}
	for _, w := range tx.writes {
		current := itemVersion(m.lookup(w.key))
		if current != w.expected {
			return false
		}
	}
	for _, w := range tx.writes {
		m.ensureTable(w.key.Table)
		if w.put != nil {
			m.tables[w.key.Table][w.key.ID] = w.put
			continue
		}
		// Partial update: copy-on-write so concurrent readers never see a
		// half-applied document.
		next := Item{}
		for k, v := range m.tables[w.key.Table][w.key.ID] {
			next[k] = v
		}
		for name, av := range w.fields {
			next[name] = av
		}
		next[VersionAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(w.expected+1, 10)}
		m.tables[w.key.Table][w.key.ID] = next
	}
	return true
}

type memTx struct {
	m      *Memory
	reads  map[Key]int64
	writes []stagedWrite
}

func (t *memTx) Get(ctx context.Context, key Key, out interface{}) error {
	t.m.mu.Lock()
	item := t.m.lookup(key)
	t.m.mu.Unlock()
	t.reads[key] = itemVersion(item)
	if item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", key.Table, key.ID, err)
	}
	return nil
}

func (t *memTx) Put(key Key, doc interface{}) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", key.Table, key.ID, err)
	}
	expected := t.reads[key]
	item["id"] = &types.AttributeValueMemberS{Value: key.ID}
	item[VersionAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expected+1, 10)}
	t.writes = append(t.writes, stagedWrite{key: key, expected: expected, put: item})
	return nil
}

func (t *memTx) Update(key Key, fields map[string]interface{}) error {
	expected, read := t.reads[key]
	if !read || expected == 0 {
		return fmt.Errorf("update of unread document %s/%s", key.Table, key.ID)
	}
	avs := make(map[string]types.AttributeValue, len(fields))
	for name, v := range fields {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %s of %s/%s: %w", name, key.Table, key.ID, err)
		}
		avs[name] = av
	}
	t.writes = append(t.writes, stagedWrite{key: key, expected: expected, fields: avs})
	return nil
}
