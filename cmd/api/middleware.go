package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	cookiePrefix    = "shop_"
	cookieSessionID = cookiePrefix + "session-id"
	cookieMaxAge    = 60 * 60 * 48
)

type ctxKeySessionID struct{}
type ctxKeyLog struct{}

// ensureSessionID reads the session cookie, minting one on the first visit,
// and puts the id on the request context.
func ensureSessionID(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		c, err := r.Cookie(cookieSessionID)
		if err == http.ErrNoCookie {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:   cookieSessionID,
				Value:  sessionID,
				MaxAge: cookieMaxAge,
				Path:   "/",
			})
		} else if err != nil {
			http.Error(w, "invalid session cookie", http.StatusBadRequest)
			return
		} else {
			sessionID = c.Value
		}
		ctx := context.WithValue(r.Context(), ctxKeySessionID{}, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func sessionID(r *http.Request) string {
	if v, ok := r.Context().Value(ctxKeySessionID{}).(string); ok {
		return v
	}
	return ""
}

type logHandler struct {
	log  *logrus.Logger
	next http.Handler
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// logHandler attaches a request-scoped logger to the context and logs one
// line per completed request.
func (lh *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	log := lh.log.WithFields(logrus.Fields{
		"http.req.id":     requestID,
		"http.req.method": r.Method,
		"http.req.path":   r.URL.Path,
	})
	if sid := sessionID(r); sid != "" {
		log = log.WithField("session", sid)
	}

	rr := &responseRecorder{ResponseWriter: w}
	ctx := context.WithValue(r.Context(), ctxKeyLog{}, logrus.FieldLogger(log))
	lh.next.ServeHTTP(rr, r.WithContext(ctx))

	log.WithFields(logrus.Fields{
		"http.resp.status":  rr.status,
		"http.resp.bytes":   rr.bytes,
		"http.resp.took_ms": time.Since(start).Milliseconds(),
	}).Debug("request complete")
}

func requestLogger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}
