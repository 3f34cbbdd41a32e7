// Package seed loads demo accounts and a starter catalog.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/franchise-orders/internal/database"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/safar/franchise-orders/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const DefaultPassword = "password"

type account struct {
	name  string
	email string
	role  models.Role
}

var accounts = []account{
	{"Head Office Admin", "ho@example.com", models.RoleHO},
	{"Outlet Bali", "outlet1@example.com", models.RoleOutlet},
	{"Outlet Denpasar", "outlet2@example.com", models.RoleOutlet},
}

type item struct {
	name  string
	price int64
	stock int
}

var catalog = []item{
	{"Nasi Goreng Special", 25000, 100},
	{"Mie Ayam Bakso", 20000, 150},
	{"Ayam Geprek", 22000, 80},
	{"Soto Ayam", 18000, 120},
	{"Ikan Bakar", 15000, 90},
	{"Es Teh Manis", 5000, 200},
	{"Es Jeruk", 7000, 180},
	{"Kopi Susu", 12000, 150},
	{"Jus Alpukat", 15000, 100},
	{"Pisang Goreng", 10000, 75},
}

type Result struct {
	Users    int
	Products int
}

// Run inserts the demo data. Accounts whose email already exists are
// skipped, and products are only added to an empty catalog, so running it
// twice changes nothing.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) (Result, error) {
	var res Result

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return res, fmt.Errorf("hash password: %w", err)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		res = Result{}

		for _, a := range accounts {
			_, err := store.GetUserByEmail(ctx, tx, a.email)
			if err == nil {
				logger.Debug("seed user exists", slog.String("email", a.email))
				continue
			}
			if !errors.Is(err, database.ErrUserNotFound) {
				return err
			}
			if _, err := store.CreateUser(ctx, tx, a.name, a.email, string(hash), a.role); err != nil {
				return err
			}
			res.Users++
		}

		existing, err := store.ListProducts(ctx, tx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for _, p := range catalog {
			if _, err := store.CreateProduct(ctx, tx, p.name, decimal.NewFromInt(p.price), p.stock); err != nil {
				return err
			}
			res.Products++
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}

	logger.Info("seed complete", slog.Int("users", res.Users), slog.Int("products", res.Products))
	return res, nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(u *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
