// Command entityinspect is a minimal read-only HTTP introspection
// server for an entitydb database: store counts and last keys for
// operators. It is observability tooling, not a query surface — it
// never exposes filtering, joins, or record bodies, staying clear of
// the query-builder API spec.md places out of scope.
//
// Adapted from the shape of the teacher's
// api/system_metrics_handler.go: gorilla/mux routes, JSON responses,
// no authentication middleware (this tool is meant to run behind an
// operator's own network boundary, never exposed directly).
package main

import (
	"flag"
	"log"
	"net/http"

	"entitydb/config"
	"entitydb/kvengine"
	"entitydb/logger"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()
	logger.Configure()

	addr := flag.String("addr", ":8087", "listen address")
	flag.Parse()

	kv, err := kvengine.OpenBolt(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("entityinspect: open %s: %v", cfg.DatabasePath(), err)
	}
	defer kv.Close()

	h := &handlers{kv: kv}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.HandleFunc("/stores/{name}", h.storeInfo).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:     *addr,
		Handler:  router,
		ErrorLog: logger.SetHTTPServerErrorLog(),
	}

	logger.Info("entityinspect: listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("entityinspect: %v", err)
	}
}
