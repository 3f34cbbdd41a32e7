package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/franchise-orders/internal/validate"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validate.Field("id", "The id must be a positive integer.")
	}
	return id, nil
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Products retrieved successfully", products)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in validate.ProductInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	product, err := s.catalog.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusCreated, "Product created successfully", product)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	var in validate.ProductInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	product, err := s.catalog.Update(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Product updated successfully", product)
}

type deletedProduct struct {
	ID int64 `json:"id"`
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}

	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Product deleted successfully", deletedProduct{ID: id})
}
