// Package validate checks request input before any business logic runs.
package validate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/safar/franchise-orders/internal/models"
	"github.com/shopspring/decimal"
)

const (
	MaxNameLength = 255

	// INTEGER columns
	MaxStock    = math.MaxInt32
	MaxQuantity = math.MaxInt32
)

var (
	ErrInvalid = errors.New("validation failed")

	// NUMERIC(12,2)
	maxPrice = decimal.New(1, 10)
	// NUMERIC(14,2)
	maxOrderTotal = decimal.New(1, 12)
)

// Error collects messages per input field.
type Error struct {
	Fields map[string][]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalid.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, ", "))
}

func (e *Error) Is(target error) bool { return target == ErrInvalid }

func (e *Error) ValidationFields() map[string][]string { return e.Fields }

// First returns the first message in field order, for one-line responses.
func (e *Error) First() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ErrInvalid.Error()
}

func (e *Error) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *Error) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Field builds a single-field validation error.
func Field(field, msg string) error {
	e := &Error{}
	e.Add(field, msg)
	return e
}

func OrderItems(items []models.ItemRequest) error {
	e := &Error{}
	if len(items) == 0 {
		e.Add("items", "The items field must contain at least one item.")
		return e
	}
	for i, item := range items {
		if item.ProductID <= 0 {
			e.Add(fmt.Sprintf("items.%d.product_id", i), "The product_id must be a positive integer.")
		}
		switch {
		case item.Quantity < 1:
			e.Add(fmt.Sprintf("items.%d.quantity", i), "The quantity must be at least 1.")
		case item.Quantity > MaxQuantity:
			e.Add(fmt.Sprintf("items.%d.quantity", i), fmt.Sprintf("The quantity must not be greater than %d.", MaxQuantity))
		}
	}
	return e.orNil()
}

// OrderTotal rejects totals the orders table cannot store.
func OrderTotal(total decimal.Decimal) error {
	if total.GreaterThanOrEqual(maxOrderTotal) {
		return Field("items", "The order total is too large.")
	}
	return nil
}

// ProductInput is a create/update body. Pointer fields distinguish missing
// values from zero values.
type ProductInput struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

// Product validates in and returns the normalized values.
func Product(in ProductInput) (name string, price decimal.Decimal, stock int, err error) {
	e := &Error{}

	if in.Name == nil {
		e.Add("name", "The name field is required.")
	} else {
		name = strings.TrimSpace(*in.Name)
		switch {
		case name == "":
			e.Add("name", "The name field is required.")
		case utf8.RuneCountInString(name) > MaxNameLength:
			e.Add("name", fmt.Sprintf("The name must not be greater than %d characters.", MaxNameLength))
		}
	}

	if in.Price == nil {
		e.Add("price", "The price field is required.")
	} else {
		price = *in.Price
		switch {
		case price.IsNegative():
			e.Add("price", "The price must be at least 0.")
		case price.Exponent() < -2 && !price.Equal(price.Round(2)):
			e.Add("price", "The price must have at most 2 decimal places.")
		case price.GreaterThanOrEqual(maxPrice):
			e.Add("price", "The price is too large.")
		}
	}

	if in.Stock == nil {
		e.Add("stock", "The stock field is required.")
	} else {
		stock = *in.Stock
		switch {
		case stock < 0:
			e.Add("stock", "The stock must be at least 0.")
		case stock > MaxStock:
			e.Add("stock", fmt.Sprintf("The stock must not be greater than %d.", MaxStock))
		}
	}

	if err := e.orNil(); err != nil {
		return "", decimal.Decimal{}, 0, err
	}
	return name, price, stock, nil
}

func Status(s string) (models.OrderStatus, error) {
	status := models.OrderStatus(s)
	if s == "" {
		return "", Field("status", "The status field is required.")
	}
	if !status.Valid() {
		return "", Field("status", "The selected status is invalid.")
	}
	return status, nil
}
