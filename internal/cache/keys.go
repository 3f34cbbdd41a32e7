package cache

import "fmt"

const (
	// dashboard:generation -> counter bumped on every invalidation
	keyDashboardGeneration = "dashboard:generation"
	// dashboard:summary:{generation} -> JSON models.DashboardSummary
	keyDashboardSummary = "dashboard:summary:%d"

	// idem:order:create:{outlet_id}:{idempotency_key} -> order id, or "pending" while in flight
	keyIdemOrderCreate = "idem:order:create:%d:%s"
)

const idemPending = "pending"

func dashboardKey(gen int64) string {
	return fmt.Sprintf(keyDashboardSummary, gen)
}

func idemKey(outletID int64, key string) string {
	return fmt.Sprintf(keyIdemOrderCreate, outletID, key)
}
