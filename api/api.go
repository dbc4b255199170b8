// Package api is the RESTful management interface of the gateway: sensor
// data queries, device liveness, serial log access and the firmware
// workflow.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/farmgate-io/farmgate/core/logger"
	"github.com/farmgate-io/farmgate/firmware"
	"github.com/farmgate-io/farmgate/liveness"
	"github.com/farmgate-io/farmgate/store"
)

// maxFirmwareUploadSize caps the multipart form memory of a firmware
// upload.
const maxFirmwareUploadSize = 64 * 1024 * 1024

// Builder is a builder helper for the API
type Builder struct {
	// Store is the gateway persistence layer. This is mandatory.
	Store *store.Store
	// Firmware is the firmware workflow. This is mandatory.
	Firmware *firmware.Workflow
	// Router is a mux router. This is mandatory.
	Router *mux.Router
}

// API is the RESTful interface of the gateway.
type API struct {
	store    *store.Store
	firmware *firmware.Workflow
}

// NewAPI realizes the actual API and adds its routes to the router.
func NewAPI(b *Builder) *API {
	if b.Store == nil {
		panic("Store is missing")
	}
	if b.Firmware == nil {
		panic("Firmware is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}

	a := &API{store: b.Store, firmware: b.Firmware}
	a.handleRoutes(b.Router)
	return a
}

func (a *API) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Infoln("api: handle route /get-sensor-data GET")
	rlog.Infoln("api: handle route /check-device-status GET")
	rlog.Infoln("api: handle route /latest-serial-messages GET")
	rlog.Infoln("api: handle route /firmware-update POST")
	rlog.Infoln("api: handle route /set-stable-latest-version GET")
	rlog.Infoln("api: handle route /firmware-versions GET")
	rlog.Infoln("api: handle route /latest-stable-firmware GET")

	router.HandleFunc("/get-sensor-data", func(w http.ResponseWriter, r *http.Request) {
		reading, err := a.store.Readings.Last()
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no sensor data", http.StatusNotFound)
			return
		}
		if err != nil {
			a.internalError(w, r, err)
			return
		}
		writeJSON(w, reading)
	}).Methods(http.MethodGet)

	router.HandleFunc("/check-device-status", func(w http.ResponseWriter, r *http.Request) {
		reading, err := a.store.Readings.Last()
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, liveness.Evaluate(nil, time.Now().UTC()))
			return
		}
		if err != nil {
			a.internalError(w, r, err)
			return
		}
		writeJSON(w, liveness.Evaluate(&reading, time.Now().UTC()))
	}).Methods(http.MethodGet)

	router.HandleFunc("/latest-serial-messages", func(w http.ResponseWriter, r *http.Request) {
		messages, err := a.store.SerialLog.Latest(store.DefaultSerialLimit)
		if err != nil {
			a.internalError(w, r, err)
			return
		}
		writeJSON(w, messages)
	}).Methods(http.MethodGet)

	router.HandleFunc("/firmware-update", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxFirmwareUploadSize); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		version := r.FormValue("firmwareVersion")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "firmware file is missing", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "cannot read firmware file", http.StatusBadRequest)
			return
		}

		if err := a.firmware.Upload(version, header.Filename, data); err != nil {
			a.writeWorkflowError(w, r, err)
			return
		}
		writeJSON(w, messageResponse{Message: fmt.Sprintf("firmware %s uploaded", version)})
	}).Methods(http.MethodPost)

	router.HandleFunc("/set-stable-latest-version", func(w http.ResponseWriter, r *http.Request) {
		version := r.URL.Query().Get("firmwareVersion")
		if err := a.firmware.SetStable(version); err != nil {
			a.writeWorkflowError(w, r, err)
			return
		}
		writeJSON(w, messageResponse{Message: fmt.Sprintf("stable firmware version set to %s", version)})
	}).Methods(http.MethodGet)

	router.HandleFunc("/firmware-versions", func(w http.ResponseWriter, r *http.Request) {
		versions, err := a.firmware.Versions()
		if err != nil {
			a.internalError(w, r, err)
			return
		}
		writeJSON(w, versions)
	}).Methods(http.MethodGet)

	router.HandleFunc("/latest-stable-firmware", func(w http.ResponseWriter, r *http.Request) {
		version, err := a.firmware.LatestStable()
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no stable firmware version set", http.StatusNotFound)
			return
		}
		if err != nil {
			a.internalError(w, r, err)
			return
		}
		writeJSON(w, struct {
			FirmwareVersion string `json:"firmwareVersion"`
		}{FirmwareVersion: version})
	}).Methods(http.MethodGet)
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeWorkflowError maps a firmware workflow error onto the HTTP
// response: validation failures are the caller's fault, everything else is
// an internal storage error whose detail stays in the log.
func (a *API) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	var verr store.ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	}
	a.internalError(w, r, err)
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).WithError(err).Error("storage error")
	http.Error(w, "internal storage error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	jsonData, _ := json.MarshalIndent(value, "", " ")
	w.Write(jsonData)
}
