package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	t.Parallel()

	id, err := ParseIdentity("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, Identity("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), id)
	assert.False(t, id.IsZero())

	_, err = ParseIdentity("not-a-user")
	require.Error(t, err)

	assert.True(t, Identity("").IsZero())
	assert.NotEqual(t, NewIdentity(), NewIdentity())
}
