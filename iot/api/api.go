// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
	"github.com/relabs-tech/iotf/iot/state"
)

// maxBodySize limits the size of command payloads
const maxBodySize = 1 << 20

// Store reads recorded events. It is implemented by *state.Store.
type Store interface {
	Read(ctx context.Context, deviceType, deviceID, event string) (*state.Entry, error)
	List(ctx context.Context, deviceType, deviceID string) ([]state.Entry, error)
}

// API is the RESTful interface to the last events of devices and to device commands
type API struct {
	store     Store
	publisher iot.CommandPublisher
	router    *mux.Router
}

// Builder is a builder helper for the API
type Builder struct {
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Store serves the event routes. Without a store they are not registered.
	Store Store
	// Publisher sends commands. Without a publisher the command route is not registered.
	Publisher iot.CommandPublisher
}

// New realizes the actual API and adds its routes to the router
func New(b *Builder) *API {
	if b.Router == nil {
		panic("Router is missing")
	}
	a := &API{
		store:     b.Store,
		publisher: b.Publisher,
		router:    b.Router,
	}
	logger.AddRequestID(b.Router)
	a.handleRoutes(b.Router)
	return a
}

// Handler returns the router wrapped with a permissive CORS handler
func (a *API) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(a.router)
}

func (a *API) handleRoutes(router *mux.Router) {
	rlog := logger.Default()

	if a.store != nil {
		rlog.Infoln("api: handle route /devices/{device_type}/{device_id}/events GET")
		rlog.Infoln("api: handle route /devices/{device_type}/{device_id}/events/{event} GET")

		router.HandleFunc("/devices/{device_type}/{device_id}/events", func(w http.ResponseWriter, r *http.Request) {
			params := mux.Vars(r)
			entries, err := a.store.List(r.Context(), params["device_type"], params["device_id"])
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorln("cannot list events")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		}).Methods(http.MethodGet)

		router.HandleFunc("/devices/{device_type}/{device_id}/events/{event}", func(w http.ResponseWriter, r *http.Request) {
			params := mux.Vars(r)
			entry, err := a.store.Read(r.Context(), params["device_type"], params["device_id"], params["event"])
			if errors.Is(err, state.ErrNotFound) {
				http.Error(w, "no such event", http.StatusNotFound)
				return
			}
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorln("cannot read event")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, entry)
		}).Methods(http.MethodGet)
	}

	if a.publisher != nil {
		rlog.Infoln("api: handle route /devices/{device_type}/{device_id}/commands/{command} PUT")

		router.HandleFunc("/devices/{device_type}/{device_id}/commands/{command}", func(w http.ResponseWriter, r *http.Request) {
			params := mux.Vars(r)
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var data codec.Value
			if err := data.UnmarshalJSON(body); err != nil {
				http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
				return
			}

			err = a.publisher.PublishCommand(r.Context(), params["device_type"], params["device_id"], params["command"], codec.FormatJSON, data)
			if errors.Is(err, iot.ErrInvalidTopic) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorln("cannot publish command")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).Methods(http.MethodPut)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	jsonData, err := json.MarshalIndent(body, "", " ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonData)
}
