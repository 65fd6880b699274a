package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/safar/go-bookstore/internal/baas"
	"github.com/safar/go-bookstore/internal/cart"
	"github.com/safar/go-bookstore/internal/checkout"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/coupon"
	"github.com/safar/go-bookstore/internal/payment"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/sirupsen/logrus"
)

type server struct {
	cfg  *config.Config
	kv   storage.Store
	baas *baas.Client
	log  *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session bundles the per-visitor stores. Carts are durable through the KV
// store; everything else is rebuilt on restart.
type session struct {
	cart     *cart.Store
	checkout *checkout.Pipeline
	coupons  *coupon.Validator
	payment  *payment.Flow
}

func newServer(cfg *config.Config, kv storage.Store, client *baas.Client, log *logrus.Logger) *server {
	return &server{
		cfg:      cfg,
		kv:       kv,
		baas:     client,
		log:      log,
		sessions: make(map[string]*session),
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/products", s.listProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.listCategoriesHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/facets", s.facetsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/search", s.searchHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", s.productHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}/reviews", s.listReviewsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}/reviews", s.createReviewHandler).Methods(http.MethodPost)

	r.HandleFunc("/cart", s.viewCartHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart", s.addToCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/update", s.updateCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{id}", s.removeFromCartHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cart/empty", s.emptyCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/coupon", s.applyCouponHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/coupon", s.removeCouponHandler).Methods(http.MethodDelete)

	r.HandleFunc("/checkout", s.checkoutStateHandler).Methods(http.MethodGet)
	r.HandleFunc("/checkout/contact", s.submitContactHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout/shipping", s.submitShippingHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout/back", s.checkoutBackHandler).Methods(http.MethodPost)

	r.HandleFunc("/payment/begin", s.beginPaymentHandler).Methods(http.MethodPost)
	r.HandleFunc("/payment/callback", s.paymentCallbackHandler).Methods(http.MethodPost)
	r.HandleFunc("/payment/return", s.paymentReturnHandler).Methods(http.MethodGet)
	r.HandleFunc("/payment/dismiss", s.dismissPaymentHandler).Methods(http.MethodPost)
	r.HandleFunc("/payment/fail", s.failPaymentHandler).Methods(http.MethodPost)
	r.HandleFunc("/payment/status", s.paymentStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/payment/recover", s.recoverPaymentHandler).Methods(http.MethodPost)

	r.HandleFunc("/user", s.userHandler).Methods(http.MethodGet)
	r.HandleFunc("/user/signin", s.signInHandler).Methods(http.MethodPost)
	r.HandleFunc("/user/signout", s.signOutHandler).Methods(http.MethodPost)

	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}

// session returns the visitor's session bundle, creating and hydrating it on
// first touch. Hydrate is idempotent, so calling it on every lookup is safe.
func (s *server) session(ctx context.Context, r *http.Request) (*session, error) {
	id := sessionID(r)

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		c := cart.NewStore(s.kv, id, cart.Policy{
			RepriceOnMerge: s.cfg.Cart.RepriceOnMerge,
			ShippingTiers:  s.cfg.Shipping.Tiers,
		}, s.log)
		c.Subscribe(func(snap cart.Snapshot) {
			s.log.WithFields(logrus.Fields{
				"session":     id,
				"total_items": snap.TotalItems,
				"grand_total": snap.Summary.GrandTotal,
			}).Debug("cart updated")
		})
		sess = &session{
			cart:     c,
			checkout: checkout.NewPipeline(c),
			coupons:  coupon.NewValidator(s.baas, c, s.log),
			payment:  payment.NewFlow(id, c, s.kv, s.baas, s.cfg.Payment, s.cfg.Gateway, s.log),
		}
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	if err := sess.cart.Hydrate(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.StandardLogger().WithField("error", err).Error("encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
