package models

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory/pkg/constants"
)

func TestDataFetchOptions_Range(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		ipp, page  int
		start, end int
	}{
		{ipp: 10, page: 1, start: 0, end: 9},
		{ipp: 10, page: 3, start: 20, end: 29},
		{ipp: 1, page: 1, start: 0, end: 0},
		{ipp: 25, page: 2, start: 25, end: 49},
	}

	for _, tc := range testcases {
		o := DataFetchOptions{ItemsPerPage: tc.ipp, Page: tc.page}
		require.NoError(t, o.Validate())
		start, end := o.Range()
		assert.Equal(t, tc.start, start, "ipp=%d page=%d", tc.ipp, tc.page)
		assert.Equal(t, tc.end, end, "ipp=%d page=%d", tc.ipp, tc.page)
		assert.Equal(t, tc.ipp, end-start+1)
	}
}

func TestDataFetchOptions_Validate(t *testing.T) {
	t.Parallel()

	for _, o := range []DataFetchOptions{
		{ItemsPerPage: 0, Page: 1},
		{ItemsPerPage: 10, Page: 0},
		{ItemsPerPage: -1, Page: -1},
		{ItemsPerPage: math.MaxInt, Page: 2},
		{ItemsPerPage: 2, Page: math.MaxInt},
	} {
		err := o.Validate()
		require.ErrorIs(t, err, constants.ErrInvalidOptions)
	}

	assert.NoError(t, FirstPage().Validate())

	last := DataFetchOptions{ItemsPerPage: math.MaxInt, Page: 1}
	require.NoError(t, last.Validate())
	start, end := last.Range()
	assert.Equal(t, 0, start)
	assert.Equal(t, math.MaxInt-1, end)
}

func TestDataFetchOptions_json(t *testing.T) {
	t.Parallel()

	var o DataFetchOptions
	require.NoError(t, json.Unmarshal([]byte(`{"itemsPerPage":5,"page":2,"keywords":"gauze"}`), &o))
	assert.Equal(t, DataFetchOptions{ItemsPerPage: 5, Page: 2, Keywords: "gauze"}, o)
}
