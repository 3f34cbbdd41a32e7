package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesOrder(t *testing.T) {
	up, err := Files(Up)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000001_create_users.up.sql",
		"000002_create_products.up.sql",
		"000003_create_orders.up.sql",
	}, up)

	down, err := Files(Down)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000003_create_orders.down.sql",
		"000002_create_products.down.sql",
		"000001_create_users.down.sql",
	}, down)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
