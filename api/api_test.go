package api_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmgate-io/farmgate/api"
	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/firmware"
	"github.com/farmgate-io/farmgate/store"
)

// fakeDriver is an in-memory kss.Driver.
type fakeDriver struct {
	objects map[string][]byte
	fail    bool
}

func (d *fakeDriver) UploadData(key string, data []byte, contentType string) error {
	if d.fail {
		return assert.AnError
	}
	d.objects[key] = data
	return nil
}

func (d *fakeDriver) Delete(key string) error {
	delete(d.objects, key)
	return nil
}

func (d *fakeDriver) DeleteAllWithPrefix(prefix string) error {
	if d.fail {
		return assert.AnError
	}
	for key := range d.objects {
		if strings.HasPrefix(key, prefix) {
			delete(d.objects, key)
		}
	}
	return nil
}

func (d *fakeDriver) ListAllWithPrefix(prefix string) ([]string, error) {
	if d.fail {
		return nil, assert.AnError
	}
	keys := []string{}
	for key := range d.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type testGateway struct {
	router *mux.Router
	store  *store.Store
	blobs  *fakeDriver
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	db := csql.OpenMemory()
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	blobs := &fakeDriver{objects: map[string][]byte{}}
	wf := firmware.NewWorkflow(&firmware.Builder{Blobs: blobs, Stable: s.StableFirmware})

	router := mux.NewRouter()
	api.NewAPI(&api.Builder{Store: s, Firmware: wf, Router: router})
	return &testGateway{router: router, store: s, blobs: blobs}
}

func (g *testGateway) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGetSensorData(t *testing.T) {
	g := newTestGateway(t)

	w := g.get(t, "/get-sensor-data")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, g.store.Readings.Insert(21.5, 40, false, true, "d1", "1.0.0"))

	w = g.get(t, "/get-sensor-data")
	require.Equal(t, http.StatusOK, w.Code)
	var reading store.Reading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reading))
	assert.Equal(t, 21.5, reading.Temperature)
	assert.Equal(t, "d1", reading.DeviceID)
}

func TestCheckDeviceStatus(t *testing.T) {
	g := newTestGateway(t)

	w := g.get(t, "/check-device-status")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status   string `json:"status"`
		LastSeen string `json:"lastSeen"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "Offline", status.Status)
	assert.Equal(t, "N/A", status.LastSeen)

	require.NoError(t, g.store.Readings.Insert(21.5, 40, false, false, "d1", "1.0.0"))

	w = g.get(t, "/check-device-status")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "Online", status.Status)
	assert.NotEqual(t, "N/A", status.LastSeen)
}

func TestLatestSerialMessages(t *testing.T) {
	g := newTestGateway(t)

	w := g.get(t, "/latest-serial-messages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	for _, line := range []string{"boot ok", "sensors ready", "watchdog armed"} {
		require.NoError(t, g.store.SerialLog.Insert(line))
	}

	w = g.get(t, "/latest-serial-messages")
	require.Equal(t, http.StatusOK, w.Code)
	var messages []store.SerialMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 3)
	assert.Equal(t, "watchdog armed", messages[0].Message)
}

func multipartUpload(t *testing.T, version, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	require.NoError(t, form.WriteField("firmwareVersion", version))
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, form.Close())
	return body, form.FormDataContentType()
}

func TestFirmwareUpdate(t *testing.T) {
	g := newTestGateway(t)

	body, contentType := multipartUpload(t, "1.0.0", "firmware.bin", []byte("binary"))
	r := httptest.NewRequest(http.MethodPost, "/firmware-update", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "firmware 1.0.0 uploaded")

	versions := g.get(t, "/firmware-versions")
	require.Equal(t, http.StatusOK, versions.Code)
	assert.JSONEq(t, `["1.0.0"]`, versions.Body.String())
}

func TestFirmwareUpdateValidation(t *testing.T) {
	g := newTestGateway(t)

	// bad version format
	body, contentType := multipartUpload(t, "v1.0.0", "firmware.bin", []byte("binary"))
	r := httptest.NewRequest(http.MethodPost, "/firmware-update", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// bad file extension
	body, contentType = multipartUpload(t, "1.0.0", "firmware.exe", []byte("binary"))
	r = httptest.NewRequest(http.MethodPost, "/firmware-update", body)
	r.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// missing file
	r = httptest.NewRequest(http.MethodPost, "/firmware-update", strings.NewReader(""))
	w = httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, g.blobs.objects)
}

func TestFirmwareUpdateStorageError(t *testing.T) {
	g := newTestGateway(t)
	g.blobs.fail = true

	body, contentType := multipartUpload(t, "1.0.0", "firmware.bin", []byte("binary"))
	r := httptest.NewRequest(http.MethodPost, "/firmware-update", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// error detail is not leaked to the client
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestStableVersionRoundTrip(t *testing.T) {
	g := newTestGateway(t)

	w := g.get(t, "/latest-stable-firmware")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = g.get(t, "/set-stable-latest-version?firmwareVersion=1.0")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = g.get(t, "/set-stable-latest-version?firmwareVersion=1.0.2")
	require.Equal(t, http.StatusOK, w.Code)

	w = g.get(t, "/latest-stable-firmware")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"firmwareVersion":"1.0.2"}`, w.Body.String())
}

func TestFirmwareVersionsListingError(t *testing.T) {
	g := newTestGateway(t)
	g.blobs.fail = true

	w := g.get(t, "/firmware-versions")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
