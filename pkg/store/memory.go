package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

// MemoryStore implements Store in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[string]finance.ExternalAccount
	accountOrder []string

	transactions map[int64]*finance.Transaction
	byPlaidID    map[string]int64
	nextID       int64

	cursors map[string]string

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]finance.ExternalAccount),
		transactions: make(map[int64]*finance.Transaction),
		byPlaidID:    make(map[string]int64),
		cursors:      make(map[string]string),
		now:          time.Now,
	}
}

// Account operations

func (m *MemoryStore) CreateAccount(ctx context.Context, userID, accessToken, itemID string) (finance.ExternalAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account := finance.ExternalAccount{
		ID:          uuid.New().String(),
		UserID:      userID,
		AccessToken: accessToken,
		ItemID:      itemID,
		CreatedAt:   m.now().UTC(),
	}

	m.accounts[account.ID] = account
	m.accountOrder = append(m.accountOrder, account.ID)

	return account, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]finance.ExternalAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := []finance.ExternalAccount{}
	for _, id := range m.accountOrder {
		if a := m.accounts[id]; a.UserID == userID {
			accounts = append(accounts, a)
		}
	}

	return accounts, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (finance.ExternalAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return finance.ExternalAccount{}, finance.ErrNotFound
	}

	return a, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byPlaidID[tx.PlaidID]; ok {
		return finance.Transaction{}, &finance.DuplicateRecordError{ExternalID: tx.PlaidID}
	}

	return m.insertLocked(tx), nil
}

func (m *MemoryStore) UpsertByExternalID(ctx context.Context, userID, accountID, externalID string, fields finance.TransactionFields) (finance.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPlaidID[externalID]; ok {
		row := m.transactions[id]
		row.Apply(fields)
		row.UpdatedAt = m.now().UTC()
		return row.Clone(), false, nil
	}

	tx := finance.Transaction{UserID: userID, AccountID: accountID, PlaidID: externalID}
	tx.Apply(fields)

	return m.insertLocked(tx), true, nil
}

func (m *MemoryStore) UpdateByExternalID(ctx context.Context, externalID string, fields finance.TransactionFields) (finance.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPlaidID[externalID]
	if !ok {
		return finance.Transaction{}, finance.ErrNotFound
	}

	row := m.transactions[id]
	row.Apply(fields)
	row.UpdatedAt = m.now().UTC()

	return row.Clone(), nil
}

func (m *MemoryStore) DeleteByExternalID(ctx context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPlaidID[externalID]
	if !ok {
		return false, nil
	}

	delete(m.byPlaidID, externalID)
	delete(m.transactions, id)

	return true, nil
}

func (m *MemoryStore) ListForUser(ctx context.Context, userID string, query finance.TransactionQuery) ([]finance.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transactions := []finance.Transaction{}
	for _, row := range m.transactions {
		if row.UserID == userID && query.Matches(*row) {
			transactions = append(transactions, row.Clone())
		}
	}

	sort.Slice(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if a.Date != b.Date {
			return a.Date.After(b.Date)
		}
		return a.ID < b.ID
	})

	return transactions, nil
}

func (m *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	return m.count(func(t *finance.Transaction) bool { return t.UserID == userID }), nil
}

func (m *MemoryStore) CountForAccount(ctx context.Context, accountID string) (int, error) {
	return m.count(func(t *finance.Transaction) bool { return t.AccountID == accountID }), nil
}

func (m *MemoryStore) ListUnclassified(ctx context.Context, userID string) ([]finance.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transactions := []finance.Transaction{}
	for _, row := range m.transactions {
		if row.UserID == userID && row.AICategory == nil {
			transactions = append(transactions, row.Clone())
		}
	}

	sort.Slice(transactions, func(i, j int) bool { return transactions[i].ID < transactions[j].ID })

	return transactions, nil
}

func (m *MemoryStore) SetAICategory(ctx context.Context, transactionID int64, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.transactions[transactionID]
	if !ok {
		return finance.ErrNotFound
	}

	row.AICategory = &label
	row.UpdatedAt = m.now().UTC()

	return nil
}

// Cursor operations

func (m *MemoryStore) GetCursor(ctx context.Context, accountID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cursors[accountID], nil
}

func (m *MemoryStore) SaveCursor(ctx context.Context, accountID, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursors[accountID] = cursor

	return nil
}

func (m *MemoryStore) insertLocked(tx finance.Transaction) finance.Transaction {
	m.nextID++
	now := m.now().UTC()

	row := tx.Clone()
	row.ID = m.nextID
	row.CreatedAt = now
	row.UpdatedAt = now

	m.transactions[row.ID] = &row
	m.byPlaidID[row.PlaidID] = row.ID

	return row.Clone()
}

func (m *MemoryStore) count(match func(*finance.Transaction) bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, row := range m.transactions {
		if match(row) {
			n++
		}
	}

	return n
}
