package seed_test

import (
	"context"
	"testing"

	"github.com/safar/franchise-orders/internal/logging"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/seed"
	"github.com/safar/franchise-orders/internal/store"
	"github.com/safar/franchise-orders/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	res, err := seed.Run(ctx, db, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Users: 3, Products: 10}, res)

	res, err = seed.Run(ctx, db, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, seed.Result{}, res)

	products, err := store.ListProducts(ctx, db)
	require.NoError(t, err)
	require.Len(t, products, 10)
	assert.Equal(t, "Nasi Goreng Special", products[0].Name)
	assert.Equal(t, 100, products[0].Stock)

	ho, err := store.GetUserByEmail(ctx, db, "ho@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleHO, ho.Role)
	assert.True(t, seed.CheckPassword(ho, seed.DefaultPassword))
	assert.False(t, seed.CheckPassword(ho, "wrong"))

	outlet, err := store.GetUserByEmail(ctx, db, "outlet2@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOutlet, outlet.Role)
}
