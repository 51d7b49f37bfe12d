package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"aiscam-svr/internal/vessel"
)

var _ vessel.StaticCache = (*SQL)(nil)

// StaticVessel is the static_vessels row.
type StaticVessel struct {
	MMSI        uint32   `gorm:"column:mmsi;primaryKey;autoIncrement:false"`
	Name        *string  `gorm:"column:shipname"`
	ShipType    *int     `gorm:"column:shiptype"`
	IMO         *int     `gorm:"column:imo"`
	Destination *string  `gorm:"column:destination"`
	Draught     *float64 `gorm:"column:draught"`
	ToBow       *float64 `gorm:"column:to_bow"`
	ToStern     *float64 `gorm:"column:to_stern"`
	ToPort      *float64 `gorm:"column:to_port"`
	ToStarboard *float64 `gorm:"column:to_starboard"`
	UpdatedAt   time.Time
}

func (StaticVessel) TableName() string { return "static_vessels" }

func rowFrom(mmsi uint32, s vessel.Static) StaticVessel {
	return StaticVessel{
		MMSI:        mmsi,
		Name:        s.Name,
		ShipType:    s.ShipType,
		IMO:         s.IMO,
		Destination: s.Destination,
		Draught:     s.Draught,
		ToBow:       s.ToBow,
		ToStern:     s.ToStern,
		ToPort:      s.ToPort,
		ToStarboard: s.ToStarboard,
	}
}

func (r StaticVessel) static() vessel.Static {
	return vessel.Static{
		Name:        r.Name,
		ShipType:    r.ShipType,
		IMO:         r.IMO,
		Destination: r.Destination,
		Draught:     r.Draught,
		ToBow:       r.ToBow,
		ToStern:     r.ToStern,
		ToPort:      r.ToPort,
		ToStarboard: r.ToStarboard,
	}
}

// SQL keeps static records in a relational table through gorm.
type SQL struct {
	db *gorm.DB
}

// NewSQL migrates the static_vessels table.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&StaticVessel{}); err != nil {
		return nil, fmt.Errorf("migrate static_vessels: %w", err)
	}
	return &SQL{db: db}, nil
}

// OpenSQLite opens a SQLite file, or a shared in-memory database when path is empty.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -8000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (s *SQL) Lookup(ctx context.Context, mmsi uint32) (vessel.Static, bool, error) {
	var row StaticVessel
	err := s.db.WithContext(ctx).Where("mmsi = ?", mmsi).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return vessel.Static{}, false, nil
	}
	if err != nil {
		return vessel.Static{}, false, fmt.Errorf("select static %d: %w", mmsi, err)
	}
	return row.static(), true, nil
}

// Upsert replaces the whole row; callers pass the fully merged record.
func (s *SQL) Upsert(ctx context.Context, mmsi uint32, st vessel.Static) error {
	row := rowFrom(mmsi, st)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mmsi"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert static %d: %w", mmsi, err)
	}
	return nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
