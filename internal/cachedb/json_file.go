// Package cachedb implements the CacheDatabase contract (§4.6): two
// backends behind the same interface the Cache depends on. JSONFileDatabase
// adapts the teacher's crash-safe atomic-write pattern (internal/store)
// from market positions to the kernel's full entity set; SQLDatabase
// (sql.go) backs the same contract with gorm+sqlite for deployments that
// want queryable history instead of one file per entity.
//
// Both backends persist orders/accounts by their event history rather than
// a field-by-field snapshot: an Order or Account is, by construction
// (§4.3, §8), a pure function of its (initial params, applied events), so
// storing that pair and replaying it on load is exact and naturally
// satisfies the round-trip invariant `load(add(x)) == x` without needing
// to reach into either aggregate's unexported bookkeeping fields.
package cachedb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

// JSONFileDatabase persists one file per entity under dir, using
// write-to-temp-then-rename for crash safety, mirroring the teacher's
// internal/store.Store.
type JSONFileDatabase struct {
	dir string
	mu  sync.Mutex
}

// OpenJSONFileDatabase creates (if needed) dir and returns a database
// backed by it.
func OpenJSONFileDatabase(dir string) (*JSONFileDatabase, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cachedb dir: %w", err)
	}
	return &JSONFileDatabase{dir: dir}, nil
}

func (d *JSONFileDatabase) writeAtomic(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(d.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (d *JSONFileDatabase) readInto(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}

func (d *JSONFileDatabase) globFiles(prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, prefix+"*.json"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// --- currencies & instruments: one shared file each, loaded/saved wholesale ---

func (d *JSONFileDatabase) AddCurrency(c value.Currency) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []value.Currency
	if _, err := d.readInto("currencies.json", &all); err != nil {
		return err
	}
	for _, existing := range all {
		if existing.Code == c.Code {
			if existing != c {
				return fmt.Errorf("cachedb: currency %s already stored with a different definition", c.Code)
			}
			return nil
		}
	}
	all = append(all, c)
	return d.writeAtomic("currencies.json", all)
}

func (d *JSONFileDatabase) LoadAllCurrencies() ([]value.Currency, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []value.Currency
	_, err := d.readInto("currencies.json", &all)
	return all, err
}

func (d *JSONFileDatabase) AddInstrument(i value.Instrument) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []value.Instrument
	if _, err := d.readInto("instruments.json", &all); err != nil {
		return err
	}
	for _, existing := range all {
		if existing.Id == i.Id {
			if !reflect.DeepEqual(existing, i) {
				return fmt.Errorf("cachedb: instrument %s already stored with a different definition", i.Id)
			}
			return nil
		}
	}
	all = append(all, i)
	return d.writeAtomic("instruments.json", all)
}

func (d *JSONFileDatabase) LoadAllInstruments() ([]value.Instrument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []value.Instrument
	_, err := d.readInto("instruments.json", &all)
	return all, err
}

// --- accounts: one file per account, body is its replayable event log ---

type accountFile struct {
	Id     value.AccountId
	Venue  value.Venue
	Type   value.AccountType
	Events []json.RawMessage
}

func accountFileName(id value.AccountId) string { return "account_" + string(id) + ".json" }

func (d *JSONFileDatabase) saveAccount(a *account.Account) error {
	events := make([]json.RawMessage, 0, len(a.Events))
	for _, ev := range a.Events {
		encoded, err := event.EncodeAccountEvent(ev)
		if err != nil {
			return err
		}
		events = append(events, encoded)
	}
	return d.writeAtomic(accountFileName(a.Id), accountFile{Id: a.Id, Venue: a.Venue, Type: a.Type, Events: events})
}

func (d *JSONFileDatabase) AddAccount(a *account.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveAccount(a)
}

func (d *JSONFileDatabase) UpdateAccount(a *account.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveAccount(a)
}

func (d *JSONFileDatabase) LoadAllAccounts() ([]*account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	files, err := d.globFiles("account_")
	if err != nil {
		return nil, err
	}
	out := make([]*account.Account, 0, len(files))
	for _, f := range files {
		var af accountFile
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &af); err != nil {
			return nil, err
		}
		a := account.New(af.Id, af.Venue, af.Type)
		for _, raw := range af.Events {
			ev, err := event.DecodeAccountEvent(raw)
			if err != nil {
				return nil, err
			}
			if err := a.Apply(ev); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// --- orders: one file per order, body is (params, event log) ---

type orderFile struct {
	Params order.Params
	Events []json.RawMessage
}

func orderFileName(id value.ClientOrderId) string { return "order_" + string(id) + ".json" }

func (d *JSONFileDatabase) saveOrder(o *order.Order) error {
	events := make([]json.RawMessage, 0, len(o.Events))
	for _, ev := range o.Events {
		encoded, err := event.EncodeOrderEvent(ev)
		if err != nil {
			return err
		}
		events = append(events, encoded)
	}
	return d.writeAtomic(orderFileName(o.ClientOrderId), orderFile{Params: o.Params, Events: events})
}

func (d *JSONFileDatabase) AddOrder(o *order.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveOrder(o)
}

func (d *JSONFileDatabase) UpdateOrder(o *order.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveOrder(o)
}

func (d *JSONFileDatabase) LoadAllOrders() ([]*order.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	files, err := d.globFiles("order_")
	if err != nil {
		return nil, err
	}
	out := make([]*order.Order, 0, len(files))
	for _, f := range files {
		var of orderFile
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &of); err != nil {
			return nil, err
		}
		events := make([]event.OrderEvent, 0, len(of.Events))
		for _, raw := range of.Events {
			ev, err := event.DecodeOrderEvent(raw)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		o, err := order.Replay(of.Params, events)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// --- positions: one file per position, body is (instrument, fill log) ---

type positionFile struct {
	Id           value.PositionId
	InstrumentId value.InstrumentId
	StrategyId   value.StrategyId
	Instrument   value.Instrument
	Fills        []position.Fill
}

func positionFileName(id value.PositionId) string { return "position_" + string(id) + ".json" }

func (d *JSONFileDatabase) savePosition(p *position.Position) error {
	return d.writeAtomic(positionFileName(p.Id), positionFile{
		Id: p.Id, InstrumentId: p.InstrumentId, StrategyId: p.StrategyId, Instrument: p.Instrument, Fills: p.Fills,
	})
}

func (d *JSONFileDatabase) AddPosition(p *position.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.savePosition(p)
}

func (d *JSONFileDatabase) UpdatePosition(p *position.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.savePosition(p)
}

func (d *JSONFileDatabase) LoadAllPositions() ([]*position.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	files, err := d.globFiles("position_")
	if err != nil {
		return nil, err
	}
	out := make([]*position.Position, 0, len(files))
	for _, f := range files {
		var pf positionFile
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &pf); err != nil {
			return nil, err
		}
		p := position.New(pf.Id, pf.InstrumentId, pf.StrategyId, pf.Instrument)
		for _, fill := range pf.Fills {
			if _, err := p.ApplyFill(fill); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Flush wipes every persisted entity.
func (d *JSONFileDatabase) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
