// Package cache implements the kernel's in-memory authoritative snapshot
// (§4.5): every order, position, account, instrument and currency the
// kernel knows about, indexed for O(1) lookup by the keys engines need,
// and write-through to a pluggable Database.
package cache

import (
	"sync"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

// Database is the write-through persistence contract the Cache depends on.
// Concrete implementations live in internal/cachedb; the Cache defines the
// shape it needs rather than depending on any one backend.
type Database interface {
	AddCurrency(value.Currency) error
	AddInstrument(value.Instrument) error
	AddAccount(*account.Account) error
	UpdateAccount(*account.Account) error
	AddOrder(*order.Order) error
	UpdateOrder(*order.Order) error
	AddPosition(*position.Position) error
	UpdatePosition(*position.Position) error

	LoadAllCurrencies() ([]value.Currency, error)
	LoadAllInstruments() ([]value.Instrument, error)
	LoadAllAccounts() ([]*account.Account, error)
	LoadAllOrders() ([]*order.Order, error)
	LoadAllPositions() ([]*position.Position, error)

	Flush() error
}

// Cache is singly owned by the kernel; every engine holds a non-owning
// handle passed at construction (§9 "Cyclic references").
type Cache struct {
	mu sync.RWMutex
	db Database

	currencies  map[string]value.Currency
	instruments map[value.InstrumentId]value.Instrument
	accounts    map[value.AccountId]*account.Account

	orders          map[value.ClientOrderId]*order.Order
	ordersByVenueId map[value.VenueOrderId]value.ClientOrderId
	ordersByInst    map[value.InstrumentId]map[value.ClientOrderId]struct{}
	ordersByStrat   map[value.StrategyId]map[value.ClientOrderId]struct{}

	positions        map[value.PositionId]*position.Position
	positionsByInst   map[value.InstrumentId]map[value.PositionId]struct{}
	positionsByStrat  map[value.StrategyId]map[value.PositionId]struct{}
	openPositions     map[value.PositionId]struct{}
	closedPositions   map[value.PositionId]struct{}
}

// New builds an empty Cache backed by db. db may be nil for a pure in-memory
// cache (tests, or a kernel run with persistence disabled).
func New(db Database) *Cache {
	return &Cache{
		db:                db,
		currencies:        make(map[string]value.Currency),
		instruments:       make(map[value.InstrumentId]value.Instrument),
		accounts:          make(map[value.AccountId]*account.Account),
		orders:            make(map[value.ClientOrderId]*order.Order),
		ordersByVenueId:   make(map[value.VenueOrderId]value.ClientOrderId),
		ordersByInst:      make(map[value.InstrumentId]map[value.ClientOrderId]struct{}),
		ordersByStrat:     make(map[value.StrategyId]map[value.ClientOrderId]struct{}),
		positions:         make(map[value.PositionId]*position.Position),
		positionsByInst:   make(map[value.InstrumentId]map[value.PositionId]struct{}),
		positionsByStrat:  make(map[value.StrategyId]map[value.PositionId]struct{}),
		openPositions:     make(map[value.PositionId]struct{}),
		closedPositions:   make(map[value.PositionId]struct{}),
	}
}

func (c *Cache) writeThrough(op func() error) error {
	if c.db == nil {
		return nil
	}
	return op()
}

// AddCurrency registers a currency, write-through to the database.
func (c *Cache) AddCurrency(ccy value.Currency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currencies[ccy.Code] = ccy
	return c.writeThrough(func() error { return c.db.AddCurrency(ccy) })
}

// AddInstrument registers an instrument, write-through to the database.
func (c *Cache) AddInstrument(inst value.Instrument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.Id] = inst
	return c.writeThrough(func() error { return c.db.AddInstrument(inst) })
}

// AddAccount registers a new account.
func (c *Cache) AddAccount(a *account.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.Id] = a
	return c.writeThrough(func() error { return c.db.AddAccount(a) })
}

// UpdateAccount persists an existing account's mutated balances.
func (c *Cache) UpdateAccount(a *account.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.Id] = a
	return c.writeThrough(func() error { return c.db.UpdateAccount(a) })
}

// AddOrder indexes a newly created order by client id, instrument and
// strategy.
func (c *Cache) AddOrder(o *order.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ClientOrderId] = o
	indexAdd(c.ordersByInst, o.InstrumentId, o.ClientOrderId)
	indexAdd(c.ordersByStrat, o.StrategyId, o.ClientOrderId)
	return c.writeThrough(func() error { return c.db.AddOrder(o) })
}

// UpdateOrder persists an order mutated by the state machine and refreshes
// the venue-order-id index once assigned.
func (c *Cache) UpdateOrder(o *order.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ClientOrderId] = o
	if o.VenueOrderId != "" {
		c.ordersByVenueId[o.VenueOrderId] = o.ClientOrderId
	}
	return c.writeThrough(func() error { return c.db.UpdateOrder(o) })
}

// AddPosition indexes a newly opened position.
func (c *Cache) AddPosition(p *position.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[p.Id] = p
	indexAdd(c.positionsByInst, p.InstrumentId, p.Id)
	indexAdd(c.positionsByStrat, p.StrategyId, p.Id)
	c.reindexOpenClosed(p)
	return c.writeThrough(func() error { return c.db.AddPosition(p) })
}

// UpdatePosition persists a mutated position and moves it between the
// open/closed indexes as its quantity crosses zero.
func (c *Cache) UpdatePosition(p *position.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[p.Id] = p
	c.reindexOpenClosed(p)
	return c.writeThrough(func() error { return c.db.UpdatePosition(p) })
}

func (c *Cache) reindexOpenClosed(p *position.Position) {
	if p.IsOpen() {
		c.openPositions[p.Id] = struct{}{}
		delete(c.closedPositions, p.Id)
	} else {
		c.closedPositions[p.Id] = struct{}{}
		delete(c.openPositions, p.Id)
	}
}

func indexAdd[K comparable, V comparable](idx map[K]map[V]struct{}, k K, v V) {
	set, ok := idx[k]
	if !ok {
		set = make(map[V]struct{})
		idx[k] = set
	}
	set[v] = struct{}{}
}

// OrderByClientId looks up an order by its client order id.
func (c *Cache) OrderByClientId(id value.ClientOrderId) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	return o, ok
}

// OrderByVenueId looks up an order by its venue-assigned id.
func (c *Cache) OrderByVenueId(id value.VenueOrderId) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clId, ok := c.ordersByVenueId[id]
	if !ok {
		return nil, false
	}
	o, ok := c.orders[clId]
	return o, ok
}

// OrdersByInstrument returns every order known for the given instrument.
func (c *Cache) OrdersByInstrument(id value.InstrumentId) []*order.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return collectOrders(c.orders, c.ordersByInst[id])
}

// OrdersByStrategy returns every order known for the given strategy.
func (c *Cache) OrdersByStrategy(id value.StrategyId) []*order.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return collectOrders(c.orders, c.ordersByStrat[id])
}

func collectOrders(all map[value.ClientOrderId]*order.Order, ids map[value.ClientOrderId]struct{}) []*order.Order {
	out := make([]*order.Order, 0, len(ids))
	for id := range ids {
		if o, ok := all[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Position looks up a position by id.
func (c *Cache) Position(id value.PositionId) (*position.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[id]
	return p, ok
}

// PositionsByStrategy returns every position (open and closed) known for a
// strategy.
func (c *Cache) PositionsByStrategy(id value.StrategyId) []*position.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*position.Position, 0, len(c.positionsByStrat[id]))
	for pid := range c.positionsByStrat[id] {
		if p, ok := c.positions[pid]; ok {
			out = append(out, p)
		}
	}
	return out
}

// OpenPositionsByInstrumentAndStrategy returns the open positions for the
// given instrument+strategy pair — at most one under NETTING, any number
// under HEDGING.
func (c *Cache) OpenPositionsByInstrumentAndStrategy(instId value.InstrumentId, stratId value.StrategyId) []*position.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*position.Position
	for pid := range c.positionsByInst[instId] {
		if _, open := c.openPositions[pid]; !open {
			continue
		}
		if p, ok := c.positions[pid]; ok && p.StrategyId == stratId {
			out = append(out, p)
		}
	}
	return out
}

// OpenPositionsByInstrument returns every currently open position for the
// given instrument, regardless of strategy — used by Portfolio to remark
// exposures on each quote without needing to know every strategy id upfront.
func (c *Cache) OpenPositionsByInstrument(instId value.InstrumentId) []*position.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*position.Position
	for pid := range c.positionsByInst[instId] {
		if _, open := c.openPositions[pid]; !open {
			continue
		}
		if p, ok := c.positions[pid]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Instrument looks up an instrument by id.
func (c *Cache) Instrument(id value.InstrumentId) (value.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.instruments[id]
	return i, ok
}

// Account looks up an account by id.
func (c *Cache) Account(id value.AccountId) (*account.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[id]
	return a, ok
}

// Currency looks up a registered currency by code.
func (c *Cache) Currency(code string) (value.Currency, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ccy, ok := c.currencies[code]
	return ccy, ok
}

// LoadFromDatabase repopulates the in-memory indexes from the backing
// Database — used on kernel startup to restore state (§4.6, S5 "Cache
// replay"). The cache must be empty when this is called.
func (c *Cache) LoadFromDatabase() error {
	if c.db == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	currencies, err := c.db.LoadAllCurrencies()
	if err != nil {
		return err
	}
	for _, ccy := range currencies {
		c.currencies[ccy.Code] = ccy
	}

	instruments, err := c.db.LoadAllInstruments()
	if err != nil {
		return err
	}
	for _, inst := range instruments {
		c.instruments[inst.Id] = inst
	}

	accounts, err := c.db.LoadAllAccounts()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		c.accounts[a.Id] = a
	}

	orders, err := c.db.LoadAllOrders()
	if err != nil {
		return err
	}
	for _, o := range orders {
		c.orders[o.ClientOrderId] = o
		if o.VenueOrderId != "" {
			c.ordersByVenueId[o.VenueOrderId] = o.ClientOrderId
		}
		indexAdd(c.ordersByInst, o.InstrumentId, o.ClientOrderId)
		indexAdd(c.ordersByStrat, o.StrategyId, o.ClientOrderId)
	}

	positions, err := c.db.LoadAllPositions()
	if err != nil {
		return err
	}
	for _, p := range positions {
		c.positions[p.Id] = p
		indexAdd(c.positionsByInst, p.InstrumentId, p.Id)
		indexAdd(c.positionsByStrat, p.StrategyId, p.Id)
		c.reindexOpenClosed(p)
	}

	return nil
}

// CheckIntegrity verifies these cache invariants: every position and every
// working order references an instrument that exists, and every entry of
// the orders-by-instrument and positions-by-instrument indexes points back
// to a value with that instrument in its primary map. It does not check the
// strategy, venue-order-id or open/closed indexes, that the orders behind a
// position's fills exist, or that a position's fills match those orders'.
func (c *Cache) CheckIntegrity() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.positions {
		if _, ok := c.instruments[p.InstrumentId]; !ok {
			return kernelerr.NewInvariant("DANGLING_POSITION_INSTRUMENT",
				"position "+string(p.Id)+" references unknown instrument "+p.InstrumentId.String())
		}
	}
	for _, o := range c.orders {
		if o.IsWorking() {
			if _, ok := c.instruments[o.InstrumentId]; !ok {
				return kernelerr.NewInvariant("DANGLING_ORDER_INSTRUMENT",
					"working order "+string(o.ClientOrderId)+" references unknown instrument "+o.InstrumentId.String())
			}
		}
	}
	for instId, ids := range c.ordersByInst {
		for id := range ids {
			o, ok := c.orders[id]
			if !ok || o.InstrumentId != instId {
				return kernelerr.NewInvariant("ORDER_INDEX_DIVERGED",
					"orders-by-instrument index disagrees with primary map for "+instId.String())
			}
		}
	}
	for instId, ids := range c.positionsByInst {
		for id := range ids {
			p, ok := c.positions[id]
			if !ok || p.InstrumentId != instId {
				return kernelerr.NewInvariant("POSITION_INDEX_DIVERGED",
					"positions-by-instrument index disagrees with primary map for "+instId.String())
			}
		}
	}
	return nil
}
