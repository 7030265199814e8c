package migration

import (
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	ledgerdomain "github.com/stemforge/stemforge/internal/ledger/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	processingdomain "github.com/stemforge/stemforge/internal/processing/domain"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
	"gorm.io/gorm"
)

// autoMigrate covers the non-postgres engines the versioned migrations do
// not target, mainly sqlite in local development.
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&accountdomain.Account{},
		&processingdomain.Record{},
		&processingdomain.History{},
		&ledgerdomain.ConsumptionRecord{},
		&pricingdomain.Pricing{},
		&invitedomain.Code{},
		&invitedomain.Usage{},
		&rechargedomain.Record{},
	)
}
