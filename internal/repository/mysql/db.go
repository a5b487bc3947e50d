package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/museauction/internal/config"
	"github.com/example/museauction/internal/datamodels/address"
	"github.com/example/museauction/internal/datamodels/audit"
	"github.com/example/museauction/internal/datamodels/auction"
	"github.com/example/museauction/internal/datamodels/bid"
	"github.com/example/museauction/internal/datamodels/muse"
	"github.com/example/museauction/internal/datamodels/notification"
	"github.com/example/museauction/internal/datamodels/payment"
	"github.com/example/museauction/internal/datamodels/shipment"
	"github.com/example/museauction/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init opens the global GORM handle and migrates the schema.
// TranslateError is on so duplicate-key races surface as
// gorm.ErrDuplicatedKey regardless of driver.
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = Migrate(db); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// Migrate creates/updates all tables. Shared with the test harness.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&muse.Profile{},
		&auction.Auction{},
		&bid.Bid{},
		&payment.Payment{},
		&shipment.Shipment{},
		&address.Address{},
		&notification.Notification{},
		&audit.Entry{},
	)
}

// DB returns the global handle.
func DB() *gorm.DB {
	return db
}
