package models

import (
	"fmt"
	"math"

	"github.com/medkit/medinventory/pkg/constants"
)

// DataFetchOptions selects one page of a listing. Pages are 1-based.
//
// Keywords is accepted for callers that already send it but no read applies it.
type DataFetchOptions struct {
	ItemsPerPage int    `json:"itemsPerPage"`
	Page         int    `json:"page"`
	Keywords     string `json:"keywords,omitempty"`
}

// FirstPage returns options for the first page of the default size.
func FirstPage() DataFetchOptions {
	return DataFetchOptions{ItemsPerPage: constants.DefaultItemsOnPage, Page: 1}
}

func (o DataFetchOptions) Validate() error {
	if o.ItemsPerPage < 1 || o.Page < 1 {
		return fmt.Errorf("%w: itemsPerPage=%d page=%d", constants.ErrInvalidOptions, o.ItemsPerPage, o.Page)
	}
	if o.ItemsPerPage > math.MaxInt/o.Page {
		return fmt.Errorf("%w: page %d of %d rows is out of range", constants.ErrInvalidOptions, o.Page, o.ItemsPerPage)
	}
	return nil
}

// Range returns the inclusive zero-based row window of the page.
func (o DataFetchOptions) Range() (start, end int) {
	start = o.ItemsPerPage * (o.Page - 1)
	end = o.ItemsPerPage*o.Page - 1
	return start, end
}
