package constants

import "time"

const (
	// DefaultHTTPTimeout bounds a single REST round-trip.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultQueryTimeout bounds a single read or mutation issued through the DB handle.
	DefaultQueryTimeout = 15 * time.Second
)

const (
	// IDColumn is the primary key every table carries.
	IDColumn = "id"
	// CreatedAtColumn is the insertion timestamp every table carries.
	CreatedAtColumn = "created_at"
	// SoftDeleteColumn marks rows as inactive without removing them.
	SoftDeleteColumn = "is_deleted"
	// ExpiryColumn holds the expiry date on expirable tables.
	ExpiryColumn = "expiry_date"
	// OwnerColumn links a row to the identity that owns it.
	OwnerColumn = "user_id"
)

const (
	// AdjustStockFunction is the server-side procedure that changes a quantity
	// and records the usage log row in one transaction.
	AdjustStockFunction = "adjust_stock"

	AdjustStockInventoryParam = "p_inventory_id"
	AdjustStockDeltaParam     = "p_delta"
	AdjustStockIdentityParam  = "p_user_id"
)

const (
	HTTPScheme         = "http"
	HTTPSecureScheme   = "https"
	PostgresScheme     = "postgres"
	PostgresqlScheme   = "postgresql"
	DefaultRESTPath    = "/rest/v1"
	DefaultAuthPath    = "/auth/v1"
	RangeUnitItems     = "items"
	CountExact         = "count=exact"
	ReturnRepresent    = "return=representation"
	MergeDuplicates    = "resolution=merge-duplicates"
	EnvPrefix          = "MEDINV"
	DefaultItemsOnPage = 10
)
