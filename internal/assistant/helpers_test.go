package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bizbot-backend/internal/store"
)

// scriptedOracle answers each prompt from a per-prompt queue and records the
// order of calls.
type scriptedOracle struct {
	mu      sync.Mutex
	answers map[string][]string
	errs    map[string]error
	calls   []string
	vars    map[string]map[string]string
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{
		answers: map[string][]string{},
		errs:    map[string]error{},
		vars:    map[string]map[string]string{},
	}
}

func (o *scriptedOracle) on(prompt string, answers ...string) *scriptedOracle {
	o.answers[prompt] = append(o.answers[prompt], answers...)
	return o
}

func (o *scriptedOracle) fail(prompt string, err error) *scriptedOracle {
	o.errs[prompt] = err
	return o
}

func (o *scriptedOracle) Complete(_ context.Context, p PromptSpec, vars map[string]string) (json.RawMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, p.Name)
	o.vars[p.Name] = vars
	if err := o.errs[p.Name]; err != nil {
		return nil, err
	}
	queue := o.answers[p.Name]
	if len(queue) == 0 {
		return nil, fmt.Errorf("%w: unexpected prompt %s", ErrOracle, p.Name)
	}
	o.answers[p.Name] = queue[1:]
	return json.RawMessage(queue[0]), nil
}

func (o *scriptedOracle) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

type fakeStore struct {
	mu        sync.Mutex
	inventory []store.InventoryRecord
	cashflow  []store.CashflowRecord
	queries   []string
	result    *store.QueryResult
	insertErr error
	queryErr  error
}

func (s *fakeStore) InsertInventory(_ context.Context, rec store.InventoryRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inventory = append(s.inventory, rec)
	return int64(len(s.inventory)), nil
}

func (s *fakeStore) InsertCashflow(_ context.Context, rec store.CashflowRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.cashflow = append(s.cashflow, rec)
	return int64(len(s.cashflow)), nil
}

func (s *fakeStore) ExecuteReadOnly(_ context.Context, query string) (*store.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.result == nil {
		return &store.QueryResult{}, nil
	}
	return s.result, nil
}

type fakeSchema struct {
	tables []string
	err    error
}

func (f *fakeSchema) ListTables(context.Context) ([]string, error) {
	return f.tables, f.err
}

func (f *fakeSchema) DescribeTable(_ context.Context, table string) (string, error) {
	return "CREATE TABLE " + table + " (\n\tid BIGINT NOT NULL\n)", nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*store.User
	err   error
}

func (f *fakeUsers) GetOrCreateUser(_ context.Context, phone, name string) (*store.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if u, ok := f.users[phone]; ok {
		return u, false, nil
	}
	u := &store.User{ID: int64(len(f.users) + 1), PhoneNumber: phone, UserName: name}
	f.users[phone] = u
	return u, true, nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	oracle *scriptedOracle
	store  *fakeStore
	schema *fakeSchema
	users  *fakeUsers
	a      *Assistant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		oracle: newScriptedOracle(),
		store:  &fakeStore{},
		schema: &fakeSchema{tables: []string{"cashflow", "inventory", "users"}},
		users:  &fakeUsers{users: map[string]*store.User{}},
	}
	a, err := New(Deps{
		Oracle: env.oracle,
		Store:  env.store,
		Schema: env.schema,
		Users:  env.users,
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	env.a = a
	return env
}

func routeTo(category, message string) string {
	b, _ := json.Marshal(map[string]string{"category": category, "message": message})
	return string(b)
}

func sqlAnswer(sql string) string {
	b, _ := json.Marshal(map[string]string{"query": sql})
	return string(b)
}
