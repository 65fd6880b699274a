package main

import (
	"net/http"
	"os"
	"time"

	"github.com/safar/go-bookstore/internal/baas"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := storage.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()
	log.Info("connected to database")

	srv := newServer(cfg, storage.NewPostgres(db), baas.NewClient(&cfg.BaaS, log), log)

	var handler http.Handler = srv.routes()
	handler = &logHandler{log: log, next: handler}
	handler = ensureSessionID(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Infof("server starting on port %s", cfg.Server.Port)
	log.Fatal(server.ListenAndServe())
}
