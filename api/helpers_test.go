package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/store/sqlstore"
	"github.com/warp/building-ledger/store/sqlite"
)

type testServer struct {
	handler *Handler
	store   *sqlstore.Store
	router  http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	quiet := log.New(io.Discard, "", 0)
	engine := billing.NewEngineFromStore(store, billing.WithLogger(quiet))
	h := NewHandler(engine, store)
	h.Logger = quiet
	return &testServer{
		handler: h,
		store:   store,
		router:  NewRouter(h, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func vndPtr(v int64) *billing.Money {
	m := vnd(v)
	return &m
}
