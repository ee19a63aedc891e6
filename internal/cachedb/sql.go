package cachedb

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

// currencyRow, instrumentRow, accountRow, orderRow, positionRow each store
// one entity as its natural key plus a JSON blob column — the kernel's
// domain types are the schema; gorm here is a keyed blob store with
// indexing and transactions, not an ORM mapping of individual fields.
type currencyRow struct {
	Code string `gorm:"primaryKey"`
	Data string `gorm:"type:text;not null"`
}

func (currencyRow) TableName() string { return "currencies" }

type instrumentRow struct {
	Id   string `gorm:"primaryKey"`
	Data string `gorm:"type:text;not null"`
}

func (instrumentRow) TableName() string { return "instruments" }

type accountRow struct {
	Id   string `gorm:"primaryKey"`
	Data string `gorm:"type:text;not null"`
}

func (accountRow) TableName() string { return "accounts" }

type orderRow struct {
	ClientOrderId string `gorm:"primaryKey"`
	InstrumentId  string `gorm:"index"`
	StrategyId    string `gorm:"index"`
	Data          string `gorm:"type:text;not null"`
}

func (orderRow) TableName() string { return "orders" }

type positionRow struct {
	Id           string `gorm:"primaryKey"`
	InstrumentId string `gorm:"index"`
	StrategyId   string `gorm:"index"`
	Data         string `gorm:"type:text;not null"`
}

func (positionRow) TableName() string { return "positions" }

// SQLDatabase backs the CacheDatabase contract with gorm+sqlite, for
// deployments that want a single queryable file instead of one JSON file
// per entity.
type SQLDatabase struct {
	db *gorm.DB
}

// OpenSQLDatabase opens (creating if needed) a sqlite file at path and
// migrates the kernel's row schema into it.
func OpenSQLDatabase(path string) (*SQLDatabase, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open cachedb sqlite: %w", err)
	}
	if err := db.AutoMigrate(&currencyRow{}, &instrumentRow{}, &accountRow{}, &orderRow{}, &positionRow{}); err != nil {
		return nil, fmt.Errorf("migrate cachedb schema: %w", err)
	}
	return &SQLDatabase{db: db}, nil
}

func (s *SQLDatabase) AddCurrency(c value.Currency) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var existing currencyRow
	err = s.db.First(&existing, "code = ?", c.Code).Error
	if err == nil {
		if existing.Data != string(data) {
			return fmt.Errorf("cachedb: currency %s already stored with a different definition", c.Code)
		}
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return s.db.Create(&currencyRow{Code: c.Code, Data: string(data)}).Error
}

func (s *SQLDatabase) LoadAllCurrencies() ([]value.Currency, error) {
	var rows []currencyRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]value.Currency, 0, len(rows))
	for _, r := range rows {
		var c value.Currency
		if err := json.Unmarshal([]byte(r.Data), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLDatabase) AddInstrument(i value.Instrument) error {
	data, err := json.Marshal(i)
	if err != nil {
		return err
	}
	var existing instrumentRow
	err = s.db.First(&existing, "id = ?", i.Id.String()).Error
	if err == nil {
		if existing.Data != string(data) {
			return fmt.Errorf("cachedb: instrument %s already stored with a different definition", i.Id)
		}
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return s.db.Create(&instrumentRow{Id: i.Id.String(), Data: string(data)}).Error
}

func (s *SQLDatabase) LoadAllInstruments() ([]value.Instrument, error) {
	var rows []instrumentRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]value.Instrument, 0, len(rows))
	for _, r := range rows {
		var i value.Instrument
		if err := json.Unmarshal([]byte(r.Data), &i); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

type accountBlob struct {
	Venue  value.Venue
	Type   value.AccountType
	Events []json.RawMessage
}

func (s *SQLDatabase) saveAccount(a *account.Account) error {
	events := make([]json.RawMessage, 0, len(a.Events))
	for _, ev := range a.Events {
		encoded, err := event.EncodeAccountEvent(ev)
		if err != nil {
			return err
		}
		events = append(events, encoded)
	}
	data, err := json.Marshal(accountBlob{Venue: a.Venue, Type: a.Type, Events: events})
	if err != nil {
		return err
	}
	return s.db.Save(&accountRow{Id: string(a.Id), Data: string(data)}).Error
}

func (s *SQLDatabase) AddAccount(a *account.Account) error    { return s.saveAccount(a) }
func (s *SQLDatabase) UpdateAccount(a *account.Account) error { return s.saveAccount(a) }

func (s *SQLDatabase) LoadAllAccounts() ([]*account.Account, error) {
	var rows []accountRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*account.Account, 0, len(rows))
	for _, r := range rows {
		var blob accountBlob
		if err := json.Unmarshal([]byte(r.Data), &blob); err != nil {
			return nil, err
		}
		a := account.New(value.AccountId(r.Id), blob.Venue, blob.Type)
		for _, raw := range blob.Events {
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

type orderBlob struct {
	Params order.Params
	Events []json.RawMessage
}

func (s *SQLDatabase) saveOrder(o *order.Order) error {
	events := make([]json.RawMessage, 0, len(o.Events))
	for _, ev := range o.Events {
		encoded, err := event.EncodeOrderEvent(ev)
		if err != nil {
			return err
		}
		events = append(events, encoded)
	}
	data, err := json.Marshal(orderBlob{Params: o.Params, Events: events})
	if err != nil {
		return err
	}
	return s.db.Save(&orderRow{
		ClientOrderId: string(o.ClientOrderId),
		InstrumentId:  o.InstrumentId.String(),
		StrategyId:    string(o.StrategyId),
		Data:          string(data),
	}).Error
}

func (s *SQLDatabase) AddOrder(o *order.Order) error    { return s.saveOrder(o) }
func (s *SQLDatabase) UpdateOrder(o *order.Order) error { return s.saveOrder(o) }

func (s *SQLDatabase) LoadAllOrders() ([]*order.Order, error) {
	var rows []orderRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*order.Order, 0, len(rows))
	for _, r := range rows {
		var blob orderBlob
		if err := json.Unmarshal([]byte(r.Data), &blob); err != nil {
			return nil, err
		}
		events := make([]event.OrderEvent, 0, len(blob.Events))
		for _, raw := range blob.Events {
			ev, err := event.DecodeOrderEvent(raw)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		o, err := order.Replay(blob.Params, events)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

type positionBlob struct {
	InstrumentId value.InstrumentId
	StrategyId   value.StrategyId
	Instrument   value.Instrument
	Fills        []position.Fill
}

func (s *SQLDatabase) savePosition(p *position.Position) error {
	data, err := json.Marshal(positionBlob{
		InstrumentId: p.InstrumentId, StrategyId: p.StrategyId, Instrument: p.Instrument, Fills: p.Fills,
	})
	if err != nil {
		return err
	}
	return s.db.Save(&positionRow{
		Id:           string(p.Id),
		InstrumentId: p.InstrumentId.String(),
		StrategyId:   string(p.StrategyId),
		Data:         string(data),
	}).Error
}

func (s *SQLDatabase) AddPosition(p *position.Position) error    { return s.savePosition(p) }
func (s *SQLDatabase) UpdatePosition(p *position.Position) error { return s.savePosition(p) }

func (s *SQLDatabase) LoadAllPositions() ([]*position.Position, error) {
	var rows []positionRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*position.Position, 0, len(rows))
	for _, r := range rows {
		var blob positionBlob
		if err := json.Unmarshal([]byte(r.Data), &blob); err != nil {
			return nil, err
		}
		p := position.New(value.PositionId(r.Id), blob.InstrumentId, blob.StrategyId, blob.Instrument)
		for _, fill := range blob.Fills {
			if _, err := p.ApplyFill(fill); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Flush wipes every row from every table.
func (s *SQLDatabase) Flush() error {
	for _, table := range []string{"currencies", "instruments", "accounts", "orders", "positions"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
