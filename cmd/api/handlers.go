package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/safar/go-bookstore/internal/baas"
	"github.com/safar/go-bookstore/internal/catalog"
	"github.com/safar/go-bookstore/internal/checkout"
	"github.com/safar/go-bookstore/internal/coupon"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/payment"
	"github.com/safar/go-bookstore/internal/pricing"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/shopspring/decimal"
)

// productView augments the catalog record with the price a single unit would
// actually sell for right now.
type productView struct {
	models.Product
	ResolvedPrice   decimal.Decimal `json:"resolved_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func viewOf(p models.Product) productView {
	return productView{
		Product:         p,
		ResolvedPrice:   pricing.ResolveUnitPrice(p, 1),
		DiscountPercent: pricing.DiscountPercent(p),
	}
}

func viewsOf(products []models.Product) []productView {
	out := make([]productView, len(products))
	for i, p := range products {
		out[i] = viewOf(p)
	}
	return out
}

type productPage struct {
	Items      []productView `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

type cartView struct {
	Items      []models.CartLineItem `json:"items"`
	Coupon     *models.Coupon        `json:"coupon,omitempty"`
	TotalItems int                   `json:"total_items"`
	Summary    models.OrderSummary   `json:"summary"`
}

func (s *server) cartView(sess *session) cartView {
	return cartView{
		Items:      sess.cart.Items(),
		Coupon:     sess.cart.Coupon(),
		TotalItems: sess.cart.TotalItems(),
		Summary:    sess.cart.Summary(),
	}
}

func (s *server) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.baas.ListProducts(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	spec := filterSpecFromQuery(r)
	filtered := catalog.Apply(products, spec)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	p := catalog.Paginate(filtered, page, pageSize)

	respondJSON(w, http.StatusOK, productPage{
		Items:      viewsOf(p.Items),
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	})
}

func filterSpecFromQuery(r *http.Request) catalog.FilterSpec {
	q := r.URL.Query()
	spec := catalog.FilterSpec{
		Categories:    csv(q.Get("categories")),
		SubCategories: csv(q.Get("sub_categories")),
		Authors:       csv(q.Get("authors")),
		Classes:       csv(q.Get("classes")),
		Editions:      csv(q.Get("editions")),
		Status:        q.Get("status"),
		Sort:          q.Get("sort"),
	}
	if v := q.Get("price_min"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			spec.PriceMin = &d
		}
	}
	if v := q.Get("price_max"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			spec.PriceMax = &d
		}
	}
	return spec
}

func csv(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *server) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := s.baas.ListCategories(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (s *server) facetsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.baas.ListProducts(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, catalog.ProjectFacets(products))
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	products, err := s.baas.ListProducts(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	results := catalog.Search(products, query)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":        query,
		"result_count": len(results),
		"items":        viewsOf(results),
	})
}

func (s *server) productHandler(w http.ResponseWriter, r *http.Request) {
	product, err := s.baas.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(*product))
}

func (s *server) listReviewsHandler(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.baas.ListReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reviews)
}

func (s *server) createReviewHandler(w http.ResponseWriter, r *http.Request) {
	var review models.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	review.ProductID = mux.Vars(r)["id"]

	created, err := s.baas.CreateReview(r.Context(), review)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *server) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	product, err := s.baas.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if product.Status == models.StockStatusOutOfStock {
		respondError(w, http.StatusConflict, "product is out of stock")
		return
	}
	if err := sess.cart.AddToCart(r.Context(), *product, req.Quantity); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) updateCartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	product, err := s.baas.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.cart.UpdateQuantity(r.Context(), *product, req.Quantity); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.cart.RemoveFromCart(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) emptyCartHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.cart.Clear(r.Context()); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) applyCouponHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	result, err := sess.coupons.Validate(r.Context(), req.Code)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]interface{}{
		"result": result,
		"cart":   s.cartView(sess),
	})
}

func (s *server) removeCouponHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.cart.RemoveCoupon(r.Context()); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(sess))
}

func (s *server) checkoutStateHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stage":    sess.checkout.Current().String(),
		"customer": sess.cart.CustomerInfo(),
		"shipping": sess.cart.ShippingInfo(),
		"ready":    sess.checkout.ReadyForPayment(),
	})
}

func (s *server) submitContactHandler(w http.ResponseWriter, r *http.Request) {
	var info models.CustomerInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.checkout.SubmitContact(info); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"stage": sess.checkout.Current().String()})
}

func (s *server) submitShippingHandler(w http.ResponseWriter, r *http.Request) {
	var info models.ShippingInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := sess.checkout.SubmitShipping(info); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"stage": sess.checkout.Current().String()})
}

func (s *server) checkoutBackHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"stage": sess.checkout.Back().String()})
}

func (s *server) beginPaymentHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if !sess.checkout.ReadyForPayment() {
		respondError(w, http.StatusConflict, "checkout is not complete")
		return
	}
	params, err := sess.payment.Begin(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, params)
}

func (s *server) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var creds models.PaymentCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	order, err := sess.payment.HandleEvent(r.Context(), payment.Event{
		Kind:        payment.KindCallback,
		Credentials: creds,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *server) paymentReturnHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	order, err := sess.payment.HandleEvent(r.Context(), payment.RedirectEvent(r.URL.Query()))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *server) dismissPaymentHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	sess.payment.Dismiss()
	respondJSON(w, http.StatusOK, map[string]string{"state": string(sess.payment.State())})
}

func (s *server) failPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	sess.payment.Fail(req.Description)
	respondJSON(w, http.StatusOK, map[string]string{"state": string(sess.payment.State())})
}

func (s *server) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	expired, err := sess.payment.WatchdogExpired(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":            string(sess.payment.State()),
		"pending":          sess.payment.HasPending(r.Context()),
		"watchdog_expired": expired,
	})
}

func (s *server) recoverPaymentHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	order, err := sess.payment.Recover(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *server) userHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := s.kv.Get(r.Context(), storage.SessionKey(storage.KeyUser, sessionID(r)))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *server) signInHandler(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err := json.Marshal(user)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if err := s.kv.Put(r.Context(), storage.SessionKey(storage.KeyUser, sessionID(r)), raw); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *server) signOutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.kv.Delete(r.Context(), storage.SessionKey(storage.KeyUser, sessionID(r))); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// respondDomainError maps domain errors onto HTTP statuses in one place so
// handlers stay short.
func (s *server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := requestLogger(r)

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}
	var rejection *baas.RejectionError
	if errors.As(err, &rejection) {
		respondError(w, http.StatusUnprocessableEntity, rejection.Reason)
		return
	}

	switch {
	case errors.Is(err, storage.ErrKeyNotFound),
		errors.Is(err, payment.ErrNoPendingOrder):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrCartEmpty),
		errors.Is(err, payment.ErrDraftIncomplete),
		errors.Is(err, payment.ErrStatusUnknown),
		errors.Is(err, coupon.ErrSuperseded):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.WithField("error", err.Error()).Error("request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
