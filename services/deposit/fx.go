package deposit

import (
	"hashmine/services/pricefeed"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("deposit.service",
	fx.Provide(
		func(f *pricefeed.Feed) Converter { return f },
		NewService,
	),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Deposit{})
}
