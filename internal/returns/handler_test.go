package returns

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

func doRequest(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReturnFlow(t *testing.T) {
	svc, repo := newTestService(t)
	order := shippedOrder(repo)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)

	rec := doRequest(r, http.MethodPost, "/", fmt.Sprintf(
		`{"sales_order_id":%d,"reason":"damaged box","items":[{"sales_order_item_id":%d,"quantity":1}]}`, order.ID, order.Items[0].ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rma Return
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rma))
	base := fmt.Sprintf("/%d", rma.ID)

	rec = doRequest(r, http.MethodPost, base+"/receive", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, base+"/approve", "").Code)
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, base+"/receive", "").Code)
	rec = doRequest(r, http.MethodPost, base+"/inspect", fmt.Sprintf(
		`{"items":[{"item_id":%d,"accepted":1,"condition":"NEW","restockable":true}],"deductions":"2.50"}`, rma.Items[0].ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(r, http.MethodPost, base+"/process", "", inventory.IdempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rma))
	assert.Equal(t, "17.50", rma.RefundAmount.StringFixed(2))

	rec = doRequest(r, http.MethodPost, base+"/process", "", inventory.IdempotencyHeader, "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(r, http.MethodGet, "/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
