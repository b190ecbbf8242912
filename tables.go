package medinventory

import (
	"slices"

	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
)

// descriptor is what the core knows about a table.
type descriptor struct {
	name       string
	softDelete string
	owner      string
	expiry     string
	projection []string
}

// TableRef names a table without fixing its record type.
type TableRef interface {
	Name() string
	describe() descriptor
}

// Table is a table whose rows decode into T. Only the descriptors of this
// package implement it.
type Table[T any] interface {
	TableRef
	record() T
}

// PlainTable is read into a single active partition.
type PlainTable[T any] struct{ d descriptor }

// OwnedTable has an owner column and is read into active and personal partitions.
type OwnedTable[T any] struct{ d descriptor }

// ExpirableTable has an expiry column and is read into active, expired and
// undated partitions.
type ExpirableTable[T any] struct{ d descriptor }

var (
	Supplies = PlainTable[models.Supply]{descriptor{
		name:       "supplies",
		softDelete: constants.SoftDeleteColumn,
	}}
	Inventory = ExpirableTable[models.Inventory]{descriptor{
		name:       "inventory",
		softDelete: constants.SoftDeleteColumn,
		expiry:     constants.ExpiryColumn,
	}}
	Logs = OwnedTable[models.UsageLog]{descriptor{
		name:       "logs",
		softDelete: constants.SoftDeleteColumn,
		owner:      constants.OwnerColumn,
	}}
	Crew = PlainTable[models.CrewMember]{descriptor{
		name: "crew",
	}}
)

// Tables lists every table the core knows.
func Tables() []TableRef {
	return []TableRef{Supplies, Inventory, Logs, Crew}
}

// LookupTable finds a table by name.
func LookupTable(name string) (TableRef, bool) {
	for _, t := range Tables() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func (t PlainTable[T]) Name() string         { return t.d.name }
func (t PlainTable[T]) describe() descriptor { return t.d }
func (PlainTable[T]) record() (r T)          { return r }

// WithProjection returns the table with reads selecting columns instead of all
// columns. Embedded relations such as "supplies(name)" need a REST connection.
func (t PlainTable[T]) WithProjection(columns ...string) PlainTable[T] {
	t.d.projection = slices.Clone(columns)
	return t
}

func (t OwnedTable[T]) Name() string         { return t.d.name }
func (t OwnedTable[T]) describe() descriptor { return t.d }
func (OwnedTable[T]) record() (r T)          { return r }

// WithProjection returns the table with reads selecting columns instead of all columns.
func (t OwnedTable[T]) WithProjection(columns ...string) OwnedTable[T] {
	t.d.projection = slices.Clone(columns)
	return t
}

func (t ExpirableTable[T]) Name() string         { return t.d.name }
func (t ExpirableTable[T]) describe() descriptor { return t.d }
func (ExpirableTable[T]) record() (r T)          { return r }

// WithProjection returns the table with reads selecting columns instead of all columns.
func (t ExpirableTable[T]) WithProjection(columns ...string) ExpirableTable[T] {
	t.d.projection = slices.Clone(columns)
	return t
}
