package models

// Supply is a row of the supplies catalogue.
type Supply struct {
	ID                  int64      `json:"id,omitempty"`
	CreatedAt           *Timestamp `json:"created_at,omitempty"`
	Type                string     `json:"type"`
	Name                string     `json:"name"`
	StrengthOrVolume    string     `json:"strength_or_volume"`
	RouteOfUse          string     `json:"route_of_use"`
	QuantityInPack      int        `json:"quantity_in_pack"`
	PossibleSideEffects string     `json:"possible_side_effects"`
	Location            string     `json:"location"`
	IsDeleted           bool       `json:"is_deleted"`
}

// SupplyRef is the supplies(name) projection embedded into inventory reads.
type SupplyRef struct {
	Name string `json:"name"`
}

// Inventory is a stocked quantity of one supply. ExpiryDate is nil for
// undated stock.
type Inventory struct {
	ID         int64      `json:"id,omitempty"`
	CreatedAt  *Timestamp `json:"created_at,omitempty"`
	SupplyID   int64      `json:"supply_id"`
	Quantity   int        `json:"quantity"`
	ExpiryDate *Timestamp `json:"expiry_date,omitempty"`
	IsDeleted  bool       `json:"is_deleted"`
	Supply     *SupplyRef `json:"supplies,omitempty"`
}

// UsageLog records one stock adjustment made by a user.
type UsageLog struct {
	ID          int64      `json:"id,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	InventoryID int64      `json:"inventory_id"`
	UserID      Identity   `json:"user_id"`
	Quantity    int        `json:"quantity"`
	IsDeleted   bool       `json:"is_deleted"`
}

type CrewMember struct {
	ID        int64      `json:"id,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
}
