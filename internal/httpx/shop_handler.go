package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
)

type Carts interface {
	Add(ctx context.Context, sess *session.Session, productID string, qty int) error
	SetQuantity(ctx context.Context, sess *session.Session, productID string, qty int) error
	Remove(ctx context.Context, sess *session.Session, productID string) error
	View(ctx context.Context, sess *session.Session) (cart.View, error)
}

type Addresses interface {
	List(ctx context.Context, sess *session.Session) ([]account.Address, error)
	Add(ctx context.Context, sess *session.Session, a account.Address) (account.Address, error)
}

type Catalog interface {
	List(ctx context.Context) ([]catalog.Product, error)
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// ShopHandler serves the catalog, the cart and saved addresses.
type ShopHandler struct {
	Catalog   Catalog
	Carts     Carts
	Addresses Addresses
	Log       *logger.Logger
}

func (h *ShopHandler) RegisterPublic(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

func (h *ShopHandler) Register(r chi.Router) {
	r.Get("/cart", h.viewCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productId}", h.setQuantity)
	r.Delete("/cart/items/{productId}", h.removeItem)
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.addAddress)
}

func (h *ShopHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ShopHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ShopHandler) viewCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Carts.View(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *ShopHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if err := h.Carts.Add(ctx, sess, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.respondCart(w, r, sess, http.StatusCreated)
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *ShopHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if err := h.Carts.SetQuantity(ctx, sess, chi.URLParam(r, "productId"), req.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.respondCart(w, r, sess, http.StatusOK)
}

func (h *ShopHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if err := h.Carts.Remove(ctx, sess, chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.respondCart(w, r, sess, http.StatusOK)
}

func (h *ShopHandler) respondCart(w http.ResponseWriter, r *http.Request, sess *session.Session, code int) {
	v, err := h.Carts.View(r.Context(), sess)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, code, v)
}

func (h *ShopHandler) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Addresses.List(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []account.Address{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ShopHandler) addAddress(w http.ResponseWriter, r *http.Request) {
	var a account.Address
	if err := decode(r, &a); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	out, err := h.Addresses.Add(r.Context(), session.FromContext(r.Context()), a)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
