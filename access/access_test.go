package access_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmgate-io/farmgate/access"
	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/store"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	db := csql.OpenMemory()
	t.Cleanup(func() { db.Close() })

	router := mux.NewRouter()
	a := access.NewAPI(&access.Builder{
		Users:  store.NewUsers(db),
		Router: router,
		Secret: "test secret",
	})
	router.Use(a.Middleware())
	router.HandleFunc("/firmware-versions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return router
}

func do(router *mux.Router, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/register", `{"username":"alice","password":"secret"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// duplicate username gets a specific message
	w = do(router, http.MethodPost, "/register", `{"username":"alice","password":"other"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "username already taken")

	w = do(router, http.MethodPost, "/login", `{"username":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/login", `{"username":"alice","password":"secret"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotEmpty(t, response.Token)

	// the issued token passes the middleware
	w = do(router, http.MethodGet, "/firmware-versions", "", map[string]string{
		"Authorization": "Bearer " + response.Token,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareRejectsMissingOrInvalidToken(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/firmware-versions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/firmware-versions", "", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterRejectsEmptyCredentials(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/register", `{"username":"","password":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
