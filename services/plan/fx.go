package plan

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("plan.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Plan{})
}
