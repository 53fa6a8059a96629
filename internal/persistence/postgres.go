package persistence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption defines connection options for PostgreSQL. ConnString,
// when set, wins over the individual fields.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// DSN builds a postgres:// connection URL.
func (opt PostgresOption) DSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

type runModel struct {
	ID               string `gorm:"primaryKey;size:26"`
	Strategy         string `gorm:"not null"`
	Instruments      string `gorm:"not null"`
	Status           string `gorm:"not null;index"`
	Error            string
	StartedAt        time.Time       `gorm:"not null;index"`
	FinishedAt       time.Time       `gorm:"not null"`
	StartEquity      decimal.Decimal `gorm:"type:numeric;not null"`
	EndEquity        decimal.Decimal `gorm:"type:numeric;not null"`
	TotalReturn      decimal.Decimal `gorm:"type:numeric;not null"`
	SharpeRatio      decimal.Decimal `gorm:"type:numeric;not null"`
	SortinoRatio     decimal.Decimal `gorm:"type:numeric;not null"`
	MaxDrawdown      decimal.Decimal `gorm:"type:numeric;not null"`
	DrawdownDuration int
	Heartbeats       int
	Signals          int
	Orders           int
	Fills            int
	CreatedAt        time.Time
}

func (runModel) TableName() string { return "runs" }

type holdingsModel struct {
	RunID      string          `gorm:"primaryKey;size:26"`
	Seq        int             `gorm:"primaryKey;autoIncrement:false"`
	Timestamp  time.Time       `gorm:"not null"`
	Cash       decimal.Decimal `gorm:"type:numeric;not null"`
	Commission decimal.Decimal `gorm:"type:numeric;not null"`
	Total      decimal.Decimal `gorm:"type:numeric;not null"`
}

func (holdingsModel) TableName() string { return "holdings" }

type fillModel struct {
	RunID      string `gorm:"primaryKey;size:26"`
	Seq        int    `gorm:"primaryKey;autoIncrement:false"`
	OrderID    string
	Timestamp  time.Time           `gorm:"not null"`
	Symbol     string              `gorm:"not null;index"`
	Exchange   string              `gorm:"not null"`
	Side       int                 `gorm:"not null"`
	Quantity   int64               `gorm:"not null"`
	FillCost   decimal.NullDecimal `gorm:"type:numeric"`
	Commission decimal.Decimal     `gorm:"type:numeric;not null"`
}

func (fillModel) TableName() string { return "fills" }

type tradeModel struct {
	ID         string          `gorm:"primaryKey"`
	RunID      string          `gorm:"not null;index;size:26"`
	Symbol     string          `gorm:"not null"`
	Side       int             `gorm:"not null"`
	Quantity   int64           `gorm:"not null"`
	EntryPrice decimal.Decimal `gorm:"type:numeric;not null"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric;not null"`
	EntryTime  time.Time       `gorm:"not null"`
	ExitTime   time.Time       `gorm:"not null"`
	GrossPL    decimal.Decimal `gorm:"type:numeric;not null"`
	Commission decimal.Decimal `gorm:"type:numeric;not null"`
	NetPL      decimal.Decimal `gorm:"type:numeric;not null"`
}

func (tradeModel) TableName() string { return "trades" }

// PostgresRepository implements Repository on PostgreSQL through gorm.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository connects and migrates the journal tables.
func NewPostgresRepository(ctx context.Context, opt PostgresOption) (*PostgresRepository, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(opt.DSN()), config)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repo := &PostgresRepository{db: db}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

// Migrate creates or updates the journal tables.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&runModel{}, &holdingsModel{}, &fillModel{}, &tradeModel{})
}

// SaveRun inserts or replaces a run header.
func (r *PostgresRepository) SaveRun(ctx context.Context, run RunRecord) error {
	m := runModel{
		ID:               run.ID,
		Strategy:         run.Strategy,
		Instruments:      joinInstruments(run.Instruments),
		Status:           run.Status,
		Error:            run.Error,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		StartEquity:      run.StartEquity,
		EndEquity:        run.EndEquity,
		TotalReturn:      run.TotalReturn,
		SharpeRatio:      run.SharpeRatio,
		SortinoRatio:     run.SortinoRatio,
		MaxDrawdown:      run.MaxDrawdown,
		DrawdownDuration: run.DrawdownDuration,
		Heartbeats:       run.Heartbeats,
		Signals:          run.Signals,
		Orders:           run.Orders,
		Fills:            run.Fills,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (m runModel) record() RunRecord {
	return RunRecord{
		ID:               m.ID,
		Strategy:         m.Strategy,
		Instruments:      splitInstruments(m.Instruments),
		Status:           m.Status,
		Error:            m.Error,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
		StartEquity:      m.StartEquity,
		EndEquity:        m.EndEquity,
		TotalReturn:      m.TotalReturn,
		SharpeRatio:      m.SharpeRatio,
		SortinoRatio:     m.SortinoRatio,
		MaxDrawdown:      m.MaxDrawdown,
		DrawdownDuration: m.DrawdownDuration,
		Heartbeats:       m.Heartbeats,
		Signals:          m.Signals,
		Orders:           m.Orders,
		Fills:            m.Fills,
	}
}

// GetRun returns the header of one run, or ErrRunNotFound.
func (r *PostgresRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var m runModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	rec := m.record()
	return &rec, nil
}

// ListRuns returns the most recent runs first.
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []runModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	out := make([]RunRecord, len(models))
	for i, m := range models {
		out[i] = m.record()
	}
	return out, nil
}

// SaveHoldings replaces the holdings history of a run.
func (r *PostgresRepository) SaveHoldings(ctx context.Context, runID string, holdings []HoldingsRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&holdingsModel{}).Error; err != nil {
			return fmt.Errorf("clear holdings: %w", err)
		}
		if len(holdings) == 0 {
			return nil
		}
		models := make([]holdingsModel, len(holdings))
		for i, h := range holdings {
			models[i] = holdingsModel{RunID: runID, Seq: i, Timestamp: h.Timestamp, Cash: h.Cash, Commission: h.Commission, Total: h.Total}
		}
		if err := tx.CreateInBatches(models, 500).Error; err != nil {
			return fmt.Errorf("insert holdings: %w", err)
		}
		return nil
	})
}

// GetHoldings returns the holdings history of a run in order.
func (r *PostgresRepository) GetHoldings(ctx context.Context, runID string) ([]HoldingsRecord, error) {
	var models []holdingsModel
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	out := make([]HoldingsRecord, len(models))
	for i, m := range models {
		out[i] = HoldingsRecord{Timestamp: m.Timestamp, Cash: m.Cash, Commission: m.Commission, Total: m.Total}
	}
	return out, nil
}

// SaveFills replaces the fills of a run.
func (r *PostgresRepository) SaveFills(ctx context.Context, runID string, fills []FillRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&fillModel{}).Error; err != nil {
			return fmt.Errorf("clear fills: %w", err)
		}
		if len(fills) == 0 {
			return nil
		}
		models := make([]fillModel, len(fills))
		for i, f := range fills {
			models[i] = fillModel{
				RunID:      runID,
				Seq:        i,
				OrderID:    f.OrderID,
				Timestamp:  f.Timestamp,
				Symbol:     f.Symbol,
				Exchange:   f.Exchange,
				Side:       int(f.Side),
				Quantity:   f.Quantity,
				FillCost:   f.FillCost,
				Commission: f.Commission,
			}
		}
		if err := tx.CreateInBatches(models, 500).Error; err != nil {
			return fmt.Errorf("insert fills: %w", err)
		}
		return nil
	})
}

// GetFills returns the fills of a run in the order they were applied.
func (r *PostgresRepository) GetFills(ctx context.Context, runID string) ([]FillRecord, error) {
	var models []fillModel
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	out := make([]FillRecord, len(models))
	for i, m := range models {
		out[i] = FillRecord{
			OrderID:    m.OrderID,
			Timestamp:  m.Timestamp,
			Symbol:     m.Symbol,
			Exchange:   m.Exchange,
			Side:       types.Side(m.Side),
			Quantity:   m.Quantity,
			FillCost:   m.FillCost,
			Commission: m.Commission,
		}
	}
	return out, nil
}

// SaveTrades replaces the closed trades of a run.
func (r *PostgresRepository) SaveTrades(ctx context.Context, runID string, trades []TradeRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&tradeModel{}).Error; err != nil {
			return fmt.Errorf("clear trades: %w", err)
		}
		if len(trades) == 0 {
			return nil
		}
		models := make([]tradeModel, len(trades))
		for i, t := range trades {
			models[i] = tradeModel{
				ID:         t.ID,
				RunID:      runID,
				Symbol:     t.Symbol,
				Side:       int(t.Side),
				Quantity:   t.Quantity,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				EntryTime:  t.EntryTime,
				ExitTime:   t.ExitTime,
				GrossPL:    t.GrossPL,
				Commission: t.Commission,
				NetPL:      t.NetPL,
			}
		}
		if err := tx.CreateInBatches(models, 500).Error; err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
		return nil
	})
}

// GetTrades returns the closed trades of a run by exit time.
func (r *PostgresRepository) GetTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	var models []tradeModel
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("exit_time, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	out := make([]TradeRecord, len(models))
	for i, m := range models {
		out[i] = TradeRecord{
			ID:         m.ID,
			Symbol:     m.Symbol,
			Side:       types.Side(m.Side),
			Quantity:   m.Quantity,
			EntryPrice: m.EntryPrice,
			ExitPrice:  m.ExitPrice,
			EntryTime:  m.EntryTime,
			ExitTime:   m.ExitTime,
			GrossPL:    m.GrossPL,
			Commission: m.Commission,
			NetPL:      m.NetPL,
		}
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
