// Package memstore implements repository.Store in memory behind one mutex.
// It backs unit tests and the single-process deployment mode; the contract
// matches the postgres implementation, including claim exclusivity, order
// tombstones and lease takeover on expiry.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/repository"
)

type Store struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	categories map[string]*domain.Category
	tasks      map[string]*domain.Task
	progress   map[string]*domain.CategoryProgress
	offers     map[string]*domain.Offer
	goods      map[int64]*domain.Good
	orders     map[string]*domain.Order
	txns       map[string]*domain.Transaction
	results    []*domain.TaskResult
	payouts    map[string]*domain.Payout
	leases     map[string]time.Time
	nextGoodID int64
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		categories: make(map[string]*domain.Category),
		tasks:      make(map[string]*domain.Task),
		progress:   make(map[string]*domain.CategoryProgress),
		offers:     make(map[string]*domain.Offer),
		goods:      make(map[int64]*domain.Good),
		orders:     make(map[string]*domain.Order),
		txns:       make(map[string]*domain.Transaction),
		payouts:    make(map[string]*domain.Payout),
		leases:     make(map[string]time.Time),
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.users[cp.ID] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) UserIDsByPhoneHash(ctx context.Context, phoneHash string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, u := range s.users {
		if u.PhoneHash != nil && *u.PhoneHash == phoneHash {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.categories[cp.ID] = &cp
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[cp.ID] = &cp
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) TasksByCategory(ctx context.Context, categoryID string) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []*domain.Task
	for _, t := range s.tasks {
		if t.CategoryID == categoryID {
			cp := *t
			tasks = append(tasks, &cp)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *Store) GetProgress(ctx context.Context, userID, categoryID string) (*domain.CategoryProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[pairKey(userID, categoryID)]
	if !ok {
		return &domain.CategoryProgress{UserID: userID, CategoryID: categoryID}, nil
	}
	cp := *p
	cp.CompletedTaskIDs = append([]string(nil), p.CompletedTaskIDs...)
	return &cp, nil
}

func (s *Store) RecordCompletion(ctx context.Context, userID, categoryID, taskID string, nextEligibleAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, categoryID)
	p, ok := s.progress[key]
	if !ok {
		p = &domain.CategoryProgress{UserID: userID, CategoryID: categoryID}
		s.progress[key] = p
	}
	if !p.Completed(taskID) {
		p.CompletedTaskIDs = append(p.CompletedTaskIDs, taskID)
	}
	p.NextEligibleAt = nextEligibleAt
	return nil
}

func (s *Store) CreateOffer(ctx context.Context, o *domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.offers[cp.ID] = &cp
	return nil
}

func (s *Store) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Store) ListOffers(ctx context.Context) ([]*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var offers []*domain.Offer
	for _, o := range s.offers {
		cp := *o
		offers = append(offers, &cp)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].ID < offers[j].ID })
	return offers, nil
}

func (s *Store) AddGood(ctx context.Context, offerID, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGoodID++
	g := &domain.Good{ID: s.nextGoodID, OfferID: offerID, Value: value, CreatedAt: time.Now()}
	s.goods[g.ID] = g
	return g.ID, nil
}

func (s *Store) ClaimGood(ctx context.Context, offerID, orderID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pick *domain.Good
	for _, g := range s.goods {
		if g.OfferID == offerID && g.OrderID == nil && (pick == nil || g.ID < pick.ID) {
			pick = g
		}
	}
	if pick == nil {
		return 0, false, nil
	}
	id := orderID
	pick.OrderID = &id
	return pick.ID, true, nil
}

func (s *Store) FinalizeGood(ctx context.Context, orderID, txHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goods {
		if g.OrderID != nil && *g.OrderID == orderID && g.TxHash == nil {
			hash := txHash
			g.TxHash = &hash
			return g.Value, nil
		}
	}
	return "", domain.ErrGoodNotFound
}

func (s *Store) ReleaseGood(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goods {
		if g.OrderID != nil && *g.OrderID == orderID && g.TxHash == nil {
			g.OrderID = nil
		}
	}
	return nil
}

func (s *Store) ReleaseExpiredGoods(ctx context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	released := 0
	for _, g := range s.goods {
		if g.OrderID == nil || g.TxHash != nil {
			continue
		}
		o, ok := s.orders[*g.OrderID]
		if !ok || o.Deleted() || o.Expired(now, ttl) {
			g.OrderID = nil
			released++
		}
	}
	return released, nil
}

func (s *Store) AvailableCount(ctx context.Context, offerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.goods {
		if g.OfferID == offerID && g.OrderID == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) TotalCount(ctx context.Context, offerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.goods {
		if g.OfferID == offerID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[cp.ID] = &cp
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Store) ActiveOrders(ctx context.Context, userID string, ttl time.Duration) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var orders []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID && !o.Deleted() && !o.Expired(now, ttl) {
			cp := *o
			orders = append(orders, &cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Store) MarkOrderDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Deleted() {
		return domain.ErrOrderDeleted
	}
	now := time.Now()
	o.DeletedAt = &now
	return nil
}

func (s *Store) DropOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *Store) PurgeOrders(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, o := range s.orders {
		if !o.CreatedAt.Before(olderThan) {
			continue
		}
		reserved := false
		for _, g := range s.goods {
			if g.OrderID != nil && *g.OrderID == id && g.TxHash == nil {
				reserved = true
				break
			}
		}
		if !reserved {
			delete(s.orders, id)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) LiveOrderCount(ctx context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, o := range s.orders {
		if !o.Deleted() && !o.Expired(now, ttl) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SettleOrder(ctx context.Context, txn *domain.Transaction, orderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txns[txn.Hash]; exists {
		return "", domain.ErrDuplicateTransaction
	}
	var good *domain.Good
	for _, g := range s.goods {
		if g.OrderID != nil && *g.OrderID == orderID && g.TxHash == nil {
			good = g
			break
		}
	}
	if good == nil {
		return "", domain.ErrGoodNotFound
	}

	cp := *txn
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.txns[cp.Hash] = &cp

	hash := txn.Hash
	good.TxHash = &hash

	if o, ok := s.orders[orderID]; ok && !o.Deleted() {
		now := time.Now()
		o.DeletedAt = &now
	}
	return good.Value, nil
}

func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txns[txn.Hash]; exists {
		return domain.ErrDuplicateTransaction
	}
	cp := *txn
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.txns[cp.Hash] = &cp
	return nil
}

func (s *Store) TransactionsByUserTask(ctx context.Context, userID, taskID string) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txns []*domain.Transaction
	for _, t := range s.txns {
		if t.UserID == userID && t.TaskID == taskID {
			cp := *t
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}

func (s *Store) InsertResult(ctx context.Context, r *domain.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.results = append(s.results, &cp)
	return nil
}

func (s *Store) GetPayoutByUsers(ctx context.Context, userIDs []string, taskID string) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range userIDs {
		if p, ok := s.payouts[pairKey(uid, taskID)]; ok {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertPayout(ctx context.Context, p *domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(p.UserID, p.TaskID)
	if _, exists := s.payouts[key]; exists {
		return domain.ErrDuplicateTransaction
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.payouts[key] = &cp
	return nil
}

func (s *Store) SetPayoutTxHash(ctx context.Context, userID, taskID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payouts[pairKey(userID, taskID)]; ok {
		hash := txHash
		p.TxHash = &hash
	}
	return nil
}

func (s *Store) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expires, held := s.leases[key]; held && expires.After(now) {
		return false, nil
	}
	s.leases[key] = now.Add(ttl)
	return true, nil
}

func (s *Store) ReleaseLease(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, key)
	return nil
}
