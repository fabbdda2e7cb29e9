package vouchers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

func newRouter(t *testing.T, actor *shared.Actor) (http.Handler, *memoryRepo) {
	t.Helper()
	svc, repo := newEngine(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actor != nil {
				req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/vouchers", NewHandler(nil, svc).MountRoutes)
	return r, repo
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreatePostCancel(t *testing.T) {
	h, repo := newRouter(t, &clerk)

	rr := do(h, http.MethodPost, "/vouchers", `{"type":"receipt","date":"2024-03-14T00:00:00Z","amount":"500","debit_ledger_id":1,"credit_ledger_id":2}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Voucher
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "REC2024030001", created.Number)
	require.Equal(t, StatusDraft, created.Status)

	rr = do(h, http.MethodPost, fmt.Sprintf("/vouchers/%d/post", created.ID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, repo.balance(cashID).Equal(amt("1500")))

	rr = do(h, http.MethodPost, fmt.Sprintf("/vouchers/%d/post", created.ID), "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(h, http.MethodPost, fmt.Sprintf("/vouchers/%d/cancel", created.ID), `{"reason":"duplicate"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, repo.balance(cashID).Equal(amt("1000")))

	rr = do(h, http.MethodDelete, fmt.Sprintf("/vouchers/%d", created.ID), "")
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerMapsValidation(t *testing.T) {
	h, _ := newRouter(t, &clerk)

	rr := do(h, http.MethodPost, "/vouchers", `{"type":"payment","date":"2024-03-14T00:00:00Z","amount":"5","debit_ledger_id":1,"credit_ledger_id":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var problem struct {
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, []string{"credit_ledger_id", "debit_ledger_id"}, problem.Fields)

	rr = do(h, http.MethodPost, "/vouchers", `{"type":"payment","surprise":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodGet, "/vouchers?status=ARCHIVED", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodGet, "/vouchers/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodGet, "/vouchers/77", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRequiresActor(t *testing.T) {
	h, _ := newRouter(t, nil)
	rr := do(h, http.MethodGet, "/vouchers", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
