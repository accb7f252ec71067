package backend

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dbsmedya/contentsync/internal/record"
)

// Op names a Store method, used for call recording and failure injection.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call is one recorded Store invocation.
type Call struct {
	Op         Op
	Collection string
	ID         string
	Fields     map[string]any
}

type failure struct {
	op     Op
	target string
	err    error
}

// MemoryStore is an in-process Store. Records get sequential numeric ids. It backs
// dry runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]record.Raw
	nextID      int
	calls       []Call
	failures    []failure
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]record.Raw),
		nextID:      1,
	}
}

// Seed replaces the contents of a collection. Records are copied.
func (m *MemoryStore) Seed(collection string, records []record.Raw) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]record.Raw, 0, len(records))
	for _, r := range records {
		copied = append(copied, cloneRaw(r))
		if n, err := strconv.Atoi(record.ToString(r["id"])); err == nil && n >= m.nextID {
			m.nextID = n + 1
		}
	}
	m.collections[collection] = copied
}

// FailOn makes the next matching calls fail with err. target is a record id for
// update and delete, the record name for create, and ignored for list.
func (m *MemoryStore) FailOn(op Op, target string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failure{op: op, target: target, err: err})
}

// Calls returns every recorded call in order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// MutationCount returns the number of create, update and delete calls.
func (m *MemoryStore) MutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op != OpList {
			n++
		}
	}
	return n
}

// Records returns a copy of a collection's current contents.
func (m *MemoryStore) Records(collection string) []record.Raw {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Raw, 0, len(m.collections[collection]))
	for _, r := range m.collections[collection] {
		out = append(out, cloneRaw(r))
	}
	return out
}

func (m *MemoryStore) ListRecords(ctx context.Context, collection string) ([]record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("list cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpList, Collection: collection})
	if err := m.injected(OpList, ""); err != nil {
		return nil, err
	}

	out := make([]record.Raw, 0, len(m.collections[collection]))
	for _, r := range m.collections[collection] {
		out = append(out, cloneRaw(r))
	}
	return out, nil
}

func (m *MemoryStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("create cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpCreate, Collection: collection, Fields: cloneRaw(fields)})
	if err := m.injected(OpCreate, record.ToString(fields[record.FieldName])); err != nil {
		return nil, err
	}
	if err := ValidateCreate(fields); err != nil {
		return nil, err
	}

	stored := cloneRaw(fields)
	stored["id"] = strconv.Itoa(m.nextID)
	m.nextID++
	m.collections[collection] = append(m.collections[collection], stored)
	return cloneRaw(stored), nil
}

func (m *MemoryStore) UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) (record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("update cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpUpdate, Collection: collection, ID: id, Fields: cloneRaw(fields)})
	if err := m.injected(OpUpdate, id); err != nil {
		return nil, err
	}
	if err := ValidateUpdate(fields); err != nil {
		return nil, err
	}

	idx := m.indexOf(collection, id)
	if idx < 0 {
		return nil, &Error{Category: CategoryNotFound, StatusCode: 404, Message: fmt.Sprintf("record %s not found", id)}
	}
	stored := m.collections[collection][idx]
	for k, v := range fields {
		stored[k] = v
	}
	return cloneRaw(stored), nil
}

func (m *MemoryStore) DeleteRecord(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return transportError("delete cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: OpDelete, Collection: collection, ID: id})
	if err := m.injected(OpDelete, id); err != nil {
		return err
	}

	idx := m.indexOf(collection, id)
	if idx < 0 {
		return &Error{Category: CategoryNotFound, StatusCode: 404, Message: fmt.Sprintf("record %s not found", id)}
	}
	records := m.collections[collection]
	m.collections[collection] = append(records[:idx], records[idx+1:]...)
	return nil
}

// injected consumes the first matching failure. Callers hold mu.
func (m *MemoryStore) injected(op Op, target string) error {
	for i, f := range m.failures {
		if f.op != op || (op != OpList && f.target != target) {
			continue
		}
		m.failures = append(m.failures[:i], m.failures[i+1:]...)
		return f.err
	}
	return nil
}

func (m *MemoryStore) indexOf(collection, id string) int {
	for i, r := range m.collections[collection] {
		if record.ToString(r["id"]) == id {
			return i
		}
	}
	return -1
}

func cloneRaw(r map[string]any) record.Raw {
	out := make(record.Raw, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
