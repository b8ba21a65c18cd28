package daemon

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/db/dsn"
	"github.com/authgate/authgate/internal/logger/adapter/stdlogger"
)

const slowQueryThreshold = 200 * time.Millisecond

// openDB opens the configured gorm engine. Queries are logged through zerolog,
// every query in dev mode, slow ones otherwise.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	source := dsn.Create(cfg.DB)

	switch cfg.DB.GormEngine {
	case "postgres":
		dialector = gormpostgres.Open(source)
	case "sqlite":
		dialector = sqlite.Open(source)
	default:
		dialector = gormmysql.Open(source)
	}

	level := gormlogger.Warn
	if cfg.DevMode {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(stdlogger.New("gorm", zerolog.InfoLevel), gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.DB.GormEngine == "sqlite" && cfg.DB.Path == "" {
		// every connection of :memory: is a database of its own
		sqlDB, errDB := db.DB()
		if errDB != nil {
			return nil, fmt.Errorf("failed to get sql db: %w", errDB)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}
