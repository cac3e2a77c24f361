package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"orderflow/pkg/session"
)

// loginRequest represents login credentials.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// addItemRequest is the body of an item addition.
type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Orders  *int   `json:"orders,omitempty"`
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OrderFlow"))
}

// health reports service status.
// @Summary Health status
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.log.Debug(r.Context(), "health status requested")
	resp := healthResponse{Status: "ok", Version: h.version}
	if h.counter != nil {
		n := h.counter()
		resp.Orders = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// login handles user login and session creation.
// @Summary Login
// @Description Authenticates user and sets session cookie
// @Accept json
// @Produce json
// @Param creds body loginRequest true "Credentials"
// @Success 200
// @Router /login [post]
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "login")
	defer span.End()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	sid, err := h.sessions.Create(ctx, req.Username)
	if err != nil {
		h.log.Error(ctx, "create session", "error", err)
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  time.Now().Add(h.sessions.TTL()),
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

// createOrder creates a new empty order for the caller.
// @Summary Create order
// @Produce json
// @Success 201 {object} order.Order
// @Security ApiKeyAuth
// @Router /orders [post]
func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "createOrder")
	defer span.End()

	owner, _ := session.PrincipalFrom(ctx)
	o, err := h.repo.Create(ctx, owner)
	if err != nil {
		h.writeRepoError(w, r, "create order", err)
		return
	}
	h.log.Info(ctx, "order created", "order_id", o.ID, "owner", owner)
	writeJSON(w, http.StatusCreated, o)
}

// listOrders lists the caller's orders.
// @Summary List orders
// @Produce json
// @Success 200 {array} order.Order
// @Security ApiKeyAuth
// @Router /orders [get]
func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "listOrders")
	defer span.End()

	owner, _ := session.PrincipalFrom(ctx)
	orders, err := h.repo.List(ctx, owner)
	if err != nil {
		h.writeRepoError(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// getOrder retrieves an order by ID.
// @Summary Get order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /orders/{id} [get]
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "getOrder")
	defer span.End()

	o, err := h.repo.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeRepoError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// addItem appends an item to an order.
// @Summary Add item
// @Accept json
// @Param id path string true "Order ID"
// @Param item body order.Item true "Item"
// @Success 204
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /orders/{id}/item [post]
func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "addItem")
	defer span.End()

	id := mux.Vars(r)["id"]
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed item: "+err.Error())
		return
	}
	if err := h.repo.AddItem(ctx, id, req.ProductID, req.Quantity); err != nil {
		h.writeRepoError(w, r, "add item", err)
		return
	}
	h.log.Debug(ctx, "item added", "order_id", id, "product_id", req.ProductID)
	w.WriteHeader(http.StatusNoContent)
}

// deleteItem removes an item by position.
// @Summary Delete item
// @Param id path string true "Order ID"
// @Param index path int true "Item index"
// @Success 204
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /orders/{id}/item/{index} [delete]
func (h *handlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "deleteItem")
	defer span.End()

	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item index")
		return
	}
	if err := h.repo.DeleteItem(ctx, vars["id"], index); err != nil {
		h.writeRepoError(w, r, "delete item", err)
		return
	}
	h.log.Debug(ctx, "item deleted", "order_id", vars["id"], "index", index)
	w.WriteHeader(http.StatusNoContent)
}
