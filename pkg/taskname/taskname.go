package taskname

const (
	// Contract tasks
	ContractExpireSweep = "contract:expire:sweep"

	// Price feed tasks
	PriceRefresh = "price:refresh"
)
