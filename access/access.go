// Package access provides user registration, login and the bearer token
// middleware protecting the management API.
package access

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/farmgate-io/farmgate/core/logger"
	"github.com/farmgate-io/farmgate/store"
)

// TokenLifetime is the validity period of issued login tokens.
var TokenLifetime = 24 * time.Hour

// Builder is a builder helper for the access API
type Builder struct {
	// Users is the credentials store. This is mandatory.
	Users *store.Users
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Secret signs and verifies login tokens. This is mandatory.
	Secret string
}

// API provides the /register and /login routes and issues bearer tokens.
type API struct {
	users  *store.Users
	secret []byte
}

// NewAPI realizes the access API and adds its routes to the router.
func NewAPI(b *Builder) *API {
	if b.Users == nil {
		panic("Users is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}
	if len(b.Secret) == 0 {
		panic("Secret is missing")
	}

	a := &API{users: b.Users, secret: []byte(b.Secret)}
	a.handleRoutes(b.Router)
	return a
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Infoln("access: handle route /register POST")
	rlog.Infoln("access: handle route /login POST")

	router.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json data", http.StatusBadRequest)
			return
		}

		err := a.users.Create(req.Username, req.Password)
		var verr store.ValidationError
		switch {
		case errors.As(err, &verr):
			http.Error(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrConflict):
			http.Error(w, "username already taken", http.StatusBadRequest)
		case err != nil:
			rlog.WithError(err).Error("cannot create user")
			http.Error(w, "internal storage error", http.StatusInternalServerError)
		default:
			writeMessage(w, fmt.Sprintf("user '%s' registered", req.Username))
		}
	}).Methods(http.MethodPost)

	router.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json data", http.StatusBadRequest)
			return
		}

		user, err := a.users.Authenticate(req.Username, req.Password)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)
			return
		}
		if err != nil {
			rlog.WithError(err).Error("cannot authenticate user")
			http.Error(w, "internal storage error", http.StatusInternalServerError)
			return
		}

		claims := jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
		if err != nil {
			rlog.WithError(err).Error("cannot sign token")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		jsonData, _ := json.MarshalIndent(struct {
			Token string `json:"token"`
		}{Token: token}, "", " ")
		w.Write(jsonData)
	}).Methods(http.MethodPost)
}

// Middleware returns a bearer token middleware for the management routes.
// Requests to /register and /login pass through unauthenticated.
func (a *API) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/register" || r.URL.Path == "/login" {
				h.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(auth[len(prefix):], &claims,
				func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
					}
					return a.secret, nil
				})
			if err != nil {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func writeMessage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	jsonData, _ := json.MarshalIndent(struct {
		Message string `json:"message"`
	}{Message: message}, "", " ")
	w.Write(jsonData)
}
