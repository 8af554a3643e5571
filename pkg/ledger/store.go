package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pullback-bot/pkg/strategy"
)

var (
	// ErrRunNotFound is returned for an unknown run ID
	ErrRunNotFound = errors.New("run not found")
	// ErrUnknownDriver is returned by Open for an unsupported database driver
	ErrUnknownDriver = errors.New("unknown database driver")
)

// RunModel is one backtest or live session
type RunModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Name           string    `gorm:"size:128;not null"`
	Mode           string    `gorm:"size:16;not null"`
	Symbols        string    `gorm:"size:1024;not null"`
	InitialCapital float64   `gorm:"not null"`
	FinalCapital   float64   `gorm:"not null"`
	TradeCount     int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null;index"`
}

func (RunModel) TableName() string {
	return "runs"
}

// TradeModel is one closed trade of a run
type TradeModel struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      string    `gorm:"size:36;not null;uniqueIndex:trade_run_seq,priority:1"`
	Seq        int       `gorm:"not null;uniqueIndex:trade_run_seq,priority:2"`
	Symbol     string    `gorm:"size:16;not null;index"`
	EntryPrice float64   `gorm:"not null"`
	ExitPrice  float64   `gorm:"not null"`
	Size       float64   `gorm:"not null"`
	Commission float64   `gorm:"not null"`
	PnL        float64   `gorm:"column:pnl;not null"`
	OpenedAt   time.Time `gorm:"not null"`
	ClosedAt   time.Time `gorm:"not null"`
	ExitReason string    `gorm:"size:16;not null"`
}

func (TradeModel) TableName() string {
	return "trades"
}

func toTradeModel(runID string, seq int, t strategy.Trade) TradeModel {
	return TradeModel{
		RunID:      runID,
		Seq:        seq,
		Symbol:     t.Symbol,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Size:       t.Size,
		Commission: t.Commission,
		PnL:        t.PnL,
		OpenedAt:   t.OpenedAt.UTC(),
		ClosedAt:   t.ClosedAt.UTC(),
		ExitReason: string(t.ExitReason),
	}
}

func (m TradeModel) toTrade() strategy.Trade {
	return strategy.Trade{
		Symbol:     m.Symbol,
		EntryPrice: m.EntryPrice,
		ExitPrice:  m.ExitPrice,
		Size:       m.Size,
		Commission: m.Commission,
		PnL:        m.PnL,
		OpenedAt:   m.OpenedAt.UTC(),
		ClosedAt:   m.ClosedAt.UTC(),
		ExitReason: strategy.ExitReason(m.ExitReason),
	}
}

// Run is a stored run summary
type Run struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Mode           string    `json:"mode"`
	Symbols        []string  `json:"symbols"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	TradeCount     int       `json:"trade_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m RunModel) toRun() Run {
	var symbols []string
	if m.Symbols != "" {
		symbols = strings.Split(m.Symbols, ",")
	}
	return Run{
		ID:             m.ID,
		Name:           m.Name,
		Mode:           m.Mode,
		Symbols:        symbols,
		InitialCapital: m.InitialCapital,
		FinalCapital:   m.FinalCapital,
		TradeCount:     m.TradeCount,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

// Open connects to a sqlite or postgres database
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// Store persists runs and their trades
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an open database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates or updates the runs and trades tables
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&RunModel{}, &TradeModel{})
}

// CreateRun starts an empty run; trades are added with AppendTrade
func (s *Store) CreateRun(ctx context.Context, name, mode string, symbols []string, initialCapital float64) (Run, error) {
	m := RunModel{
		ID:             uuid.NewString(),
		Name:           name,
		Mode:           mode,
		Symbols:        strings.Join(symbols, ","),
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	return m.toRun(), nil
}

// AppendTrade adds a closed trade to a run and moves its final capital by the trade's P&L
func (s *Store) AppendTrade(ctx context.Context, runID string, t strategy.Trade) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run RunModel
		if err := tx.First(&run, "id = ?", runID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return err
		}

		model := toTradeModel(runID, run.TradeCount, t)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		return tx.Model(&run).Updates(map[string]any{
			"trade_count":   run.TradeCount + 1,
			"final_capital": run.FinalCapital + t.PnL,
		}).Error
	})
}

// SaveRun stores a finished run with all of its trades in one transaction
func (s *Store) SaveRun(ctx context.Context, name, mode string, symbols []string, initialCapital, finalCapital float64, trades []strategy.Trade) (Run, error) {
	m := RunModel{
		ID:             uuid.NewString(),
		Name:           name,
		Mode:           mode,
		Symbols:        strings.Join(symbols, ","),
		InitialCapital: initialCapital,
		FinalCapital:   finalCapital,
		TradeCount:     len(trades),
		CreatedAt:      s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if len(trades) == 0 {
			return nil
		}
		rows := make([]TradeModel, 0, len(trades))
		for i, t := range trades {
			rows = append(rows, toTradeModel(m.ID, i, t))
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		return Run{}, fmt.Errorf("failed to save run: %w", err)
	}
	return m.toRun(), nil
}

// ListRuns returns all runs, newest first
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	var rows []RunModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toRun())
	}
	return out, nil
}

// GetRun returns one run
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var m RunModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, err
	}
	return m.toRun(), nil
}

// Trades returns a run's trades in the order they closed
func (s *Store) Trades(ctx context.Context, runID string) ([]strategy.Trade, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var rows []TradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]strategy.Trade, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toTrade())
	}
	return out, nil
}
