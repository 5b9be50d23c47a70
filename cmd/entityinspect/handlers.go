package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"entitydb/kvengine"

	"github.com/gorilla/mux"
)

type handlers struct {
	kv kvengine.Database
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type storeInfoResponse struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	LastKey  string `json:"last_key,omitempty"`
	NotFound bool   `json:"not_found,omitempty"`
}

// storeInfo reports a store's entry count and last key, in hex. It
// never returns record bodies: that's the line between introspection
// and the out-of-scope query API.
func (h *handlers) storeInfo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	tx, err := h.kv.Begin(false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	bucket := tx.Bucket(name)
	w.Header().Set("Content-Type", "application/json")
	if bucket == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(storeInfoResponse{Name: name, NotFound: true})
		return
	}

	c := bucket.Cursor()
	count := 0
	var lastKey []byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
		lastKey = k
	}

	resp := storeInfoResponse{Name: name, Count: count}
	if lastKey != nil {
		resp.LastKey = fmt.Sprintf("%x", lastKey)
	}
	json.NewEncoder(w).Encode(resp)
}
