package domain

import "time"

type NewItem struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	Quantity     int    `json:"quantity"`
	MinimumStock int    `json:"minimumStock"`
}

// ItemPatch carries the editable fields of an item. Quantity only changes
// through movements.
type ItemPatch struct {
	Name         *string `json:"name"`
	Location     *string `json:"location"`
	MinimumStock *int    `json:"minimumStock"`
}

type DashboardStats struct {
	TotalItems      int        `json:"totalItems"`
	TotalUnits      int        `json:"totalUnits"`
	LowStockItems   int        `json:"lowStockItems"`
	Locations       int        `json:"locations"`
	RecentMovements []Movement `json:"recentMovements"`
	GeneratedAt     time.Time  `json:"generatedAt"`
}
