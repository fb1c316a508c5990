package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/store"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.CreateUser(r.Context(), s.db, store.CreateUserRequest{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
		Role:  req.Role,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListUsers(r.Context(), s.db, page, pageSize)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := store.UpdateUserPosition(r.Context(), s.db, id, req.Latitude, req.Longitude); err != nil {
		fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfessionalID *int64          `json:"professional_id"`
		SKU            string          `json:"sku"`
		Name           string          `json:"name"`
		Description    string          `json:"description"`
		Price          decimal.Decimal `json:"price"`
		Stock          int             `json:"stock"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, store.CreateProductRequest{
		ProfessionalID: req.ProfessionalID,
		SKU:            req.SKU,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Stock:          req.Stock,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListProducts(r.Context(), s.db, page, pageSize)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleRestockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Stock   int `json:"stock"`
		Version int `json:"version"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := store.RestockProduct(r.Context(), s.db, id, req.Stock, req.Version); err != nil {
		fail(w, r, err)
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// callerCartID resolves the caller's cart, creating it on first use.
func (s *Server) callerCartID(r *http.Request) (int64, error) {
	userID, err := callerID(r)
	if err != nil {
		return 0, err
	}
	cart, err := store.GetOrCreateCart(r.Context(), s.db, userID)
	if err != nil {
		return 0, err
	}
	return cart.ID, nil
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cart, err := store.GetOrCreateCart(r.Context(), s.db, userID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cartID, err := s.callerCartID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cart, err := store.AddCartItem(r.Context(), s.db, cartID, req.ProductID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cartID, err := s.callerCartID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cart, err := store.UpdateCartItemQuantity(r.Context(), s.db, cartID, productID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	cartID, err := s.callerCartID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cart, err := store.RemoveCartItem(r.Context(), s.db, cartID, productID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	cartID, err := s.callerCartID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	cart, err := store.ClearCart(r.Context(), s.db, cartID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress string `json:"shipping_address"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cartID, err := s.callerCartID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	order, err := store.CreateOrderFromCart(r.Context(), s.db, cartID, req.ShippingAddress)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		ShippingAddress string `json:"shipping_address"`
		Items           []struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		} `json:"items"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var items []store.OrderItemRequest
	for _, item := range req.Items {
		items = append(items, store.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := store.CreateOrder(r.Context(), s.db, store.CreateOrderRequest{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}

	page, err := store.ListOrdersCursor(r.Context(), s.db, userID, cursor, limit)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.GetOrder(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := store.CancelOrder(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
