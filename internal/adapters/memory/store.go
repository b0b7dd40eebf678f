// Package memory implements ports.Store entirely in memory. It exists
// for tests and ad-hoc tooling: same contract as the SQLite adapter,
// including atomic rollback of a failed unit of work.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

type state struct {
	trades      map[int64]*domain.Trade
	fills       map[int64]*domain.Transaction
	tags        map[int64]map[string]struct{}
	attachments map[int64][]string
	nextTradeID int64
	nextFillID  int64
}

func newState() *state {
	return &state{
		trades:      make(map[int64]*domain.Trade),
		fills:       make(map[int64]*domain.Transaction),
		tags:        make(map[int64]map[string]struct{}),
		attachments: make(map[int64][]string),
		nextTradeID: 1,
		nextFillID:  1,
	}
}

func (st *state) clone() *state {
	c := newState()
	c.nextTradeID = st.nextTradeID
	c.nextFillID = st.nextFillID
	for id, t := range st.trades {
		c.trades[id] = cloneTrade(t)
	}
	for id, f := range st.fills {
		c.fills[id] = cloneFill(f)
	}
	for id, set := range st.tags {
		m := make(map[string]struct{}, len(set))
		for tag := range set {
			m[tag] = struct{}{}
		}
		c.tags[id] = m
	}
	for id, paths := range st.attachments {
		c.attachments[id] = append([]string(nil), paths...)
	}
	return c
}

func cloneTrade(t *domain.Trade) *domain.Trade {
	c := *t
	c.MarkPrice = cloneDecimal(t.MarkPrice)
	c.StopLoss = cloneDecimal(t.StopLoss)
	c.TakeProfit = cloneDecimal(t.TakeProfit)
	c.InitialRisk = cloneDecimal(t.InitialRisk)
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}

func cloneFill(f *domain.Transaction) *domain.Transaction {
	c := *f
	c.VenuePnL = cloneDecimal(f.VenuePnL)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Store is the in-memory ports.Store.
type Store struct {
	mu   sync.Mutex
	st   *state
	inTx bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		// The enclosing RunInTransaction already holds the lock.
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction snapshots the state, runs fn, and restores the
// snapshot if fn fails, so callers observe all-or-nothing semantics.
// A store already inside a transaction joins it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ports.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.st.clone()
	tx := &Store{st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		s.st = backup
		return err
	}
	return nil
}

// --- TradeRepository implementation ---

func (s *Store) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	defer s.lock()()
	id := s.st.nextTradeID
	s.st.nextTradeID++
	trade.ID = id
	s.st.trades[id] = cloneTrade(trade)
	return id, nil
}

func (s *Store) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	defer s.lock()()
	if _, ok := s.st.trades[trade.ID]; !ok {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	s.st.trades[trade.ID] = cloneTrade(trade)
	return nil
}

func (s *Store) DeleteTrade(ctx context.Context, id int64) error {
	defer s.lock()()
	if _, ok := s.st.trades[id]; !ok {
		return fmt.Errorf("trade ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	delete(s.st.trades, id)
	delete(s.st.tags, id)
	delete(s.st.attachments, id)
	for fid, f := range s.st.fills {
		if f.TradeID == id {
			delete(s.st.fills, fid)
		}
	}
	return nil
}

func (s *Store) FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	defer s.lock()()
	t, ok := s.st.trades[id]
	if !ok {
		return nil, nil
	}
	c := cloneTrade(t)
	c.Tags = s.tagsOf(id)
	return c, nil
}

func (s *Store) FindOpenTradesByInstrument(ctx context.Context, instr domain.Instrument) ([]*domain.Trade, error) {
	defer s.lock()()
	var out []*domain.Trade
	for _, t := range s.st.trades {
		if t.Instrument == instr && t.Status == domain.StatusOpen {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out, nil
}

func (s *Store) FindAllTrades(ctx context.Context) ([]*domain.Trade, error) {
	defer s.lock()()
	var out []*domain.Trade
	for _, t := range s.st.trades {
		out = append(out, cloneTrade(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return out, nil
}

func (s *Store) TouchLatestActivity(ctx context.Context, instr domain.Instrument, dir domain.Direction, ts time.Time) error {
	defer s.lock()()
	for _, t := range s.st.trades {
		if t.Instrument == instr && t.Direction == dir {
			t.LatestActivityAt = ts
		}
	}
	return nil
}

func (s *Store) AddTradeTag(ctx context.Context, tradeID int64, tag string) error {
	defer s.lock()()
	set, ok := s.st.tags[tradeID]
	if !ok {
		set = make(map[string]struct{})
		s.st.tags[tradeID] = set
	}
	set[tag] = struct{}{}
	return nil
}

func (s *Store) FindTagsByTradeID(ctx context.Context, tradeID int64) ([]string, error) {
	defer s.lock()()
	return s.tagsOf(tradeID), nil
}

func (s *Store) tagsOf(tradeID int64) []string {
	set := s.st.tags[tradeID]
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (s *Store) AddTradeAttachment(ctx context.Context, tradeID int64, path string) error {
	defer s.lock()()
	s.st.attachments[tradeID] = append(s.st.attachments[tradeID], path)
	return nil
}

func (s *Store) FindAttachmentsByTradeID(ctx context.Context, tradeID int64) ([]string, error) {
	defer s.lock()()
	return append([]string(nil), s.st.attachments[tradeID]...), nil
}

// --- TransactionRepository implementation ---

func (s *Store) CreateTransaction(ctx context.Context, txn *domain.Transaction) (int64, error) {
	defer s.lock()()
	id := s.st.nextFillID
	s.st.nextFillID++
	txn.ID = id
	s.st.fills[id] = cloneFill(txn)
	return id, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	defer s.lock()()
	if _, ok := s.st.fills[txn.ID]; !ok {
		return fmt.Errorf("fill ID %d not found for update: %w", txn.ID, ports.ErrNotFound)
	}
	s.st.fills[txn.ID] = cloneFill(txn)
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	defer s.lock()()
	if _, ok := s.st.fills[id]; !ok {
		return fmt.Errorf("fill ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	delete(s.st.fills, id)
	return nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	defer s.lock()()
	f, ok := s.st.fills[id]
	if !ok {
		return nil, nil
	}
	return cloneFill(f), nil
}

func (s *Store) FindTransactionsByTradeID(ctx context.Context, tradeID int64) ([]*domain.Transaction, error) {
	defer s.lock()()
	out := make([]*domain.Transaction, 0)
	for _, f := range s.st.fills {
		if f.TradeID == tradeID {
			out = append(out, cloneFill(f))
		}
	}
	domain.SortForMatching(out)
	return out, nil
}
