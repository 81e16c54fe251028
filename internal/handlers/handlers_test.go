package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sellista/marketplace/internal/config"
	"github.com/sellista/marketplace/internal/es"
	"github.com/sellista/marketplace/internal/handlers"
	"github.com/sellista/marketplace/internal/order"
	httpserver "github.com/sellista/marketplace/internal/transport/http"
)

var testSecret = []byte("test-secret")

// testEnv runs the full router against an in-memory database so requests go
// through the real auth middleware and role gates.
type testEnv struct {
	t  *testing.T
	e  *echo.Echo
	db *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	e := echo.New()
	deps := httpserver.Deps{
		JWTSecret:      testSecret,
		AuthHandler:    &handlers.AuthHandler{DB: db, JWTSecret: testSecret},
		StoreHandler:   &handlers.StoreHandler{DB: db},
		ProductHandler: &handlers.ProductHandler{DB: db},
		CartHandler:    &handlers.CartHandler{DB: db},
		OrderHandler:   &handlers.OrderHandler{Ledger: order.NewLedger(db)},
		SearchHandler:  &handlers.SearchHandler{Index: es.ProductIndex},
	}
	httpserver.Register(e, &deps)

	return &testEnv{t: t, e: e, db: db}
}

func (env *testEnv) request(method, path, token string, body any) *httptest.ResponseRecorder {
	env.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(env.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) decode(rec *httptest.ResponseRecorder, out any) {
	env.t.Helper()
	require.NoError(env.t, json.Unmarshal(rec.Body.Bytes(), out))
}

// register creates a user through the API and returns their access token.
func (env *testEnv) register(email, role, fullName string) string {
	env.t.Helper()

	rec := env.request(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    email,
		"password": "password123",
		"userType": role,
		"fullName": fullName,
	})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	env.decode(rec, &body)
	require.NotEmpty(env.t, body.Token)
	return body.Token
}

// newSellerWithProduct registers a seller, creates their store and one product.
func (env *testEnv) newSellerWithProduct(email string, price float64, stock uint) (token string, productID uint) {
	env.t.Helper()

	token = env.register(email, "seller", "Seller "+email)

	rec := env.request(http.MethodPost, "/api/seller/store", token, map[string]any{
		"storeName": "Shop of " + email,
	})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.request(http.MethodPost, "/api/seller/products", token, map[string]any{
		"name":          "Widget",
		"description":   "A fine widget",
		"price":         price,
		"stockQuantity": stock,
	})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())

	var product struct {
		ID uint `json:"id"`
	}
	env.decode(rec, &product)
	return token, product.ID
}
