package contract

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("contract.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Contract{})
}
