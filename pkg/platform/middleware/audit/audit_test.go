package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lendaudit/pkg/domain-errors"
	"lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/audit/store/memory"
	"lendaudit/pkg/platform/httputil"
	"lendaudit/pkg/requestcontext"
	"lendaudit/pkg/testutil"
)

var buyerMeta = &audit.Metadata{
	Action:     audit.ActionUpdate,
	Resource:   "buyer",
	Level:      audit.LevelCritical,
	PII:        true,
	Compliance: []string{audit.ComplianceGLBA},
}

type fixture struct {
	router chi.Router
	store  *memory.InMemoryStore
	mw     *Middleware
	icpt   *audit.Interceptor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewInMemoryStore()
	registry := audit.NewRegistry()
	icpt, err := audit.New(store, registry)
	require.NoError(t, err)
	return &fixture{
		router: chi.NewRouter(),
		store:  store,
		mw:     New(icpt, registry, nil),
		icpt:   icpt,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.NoError(t, f.icpt.Drain(context.Background()))
	return rr
}

func TestHandle_SuccessRecordsRequest(t *testing.T) {
	f := newFixture(t)
	var handlerBody map[string]any
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta,
		func(w http.ResponseWriter, r *http.Request) error {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&handlerBody))
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
			return nil
		}))

	req := httptest.NewRequest(http.MethodPut, "/buyers/42?dealId=d9",
		strings.NewReader(`{"firstName":"Ann","ssn":"123-45-6789","vehicleId":"v7"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.RemoteAddr = "1.2.3.4:5555"
	req = req.WithContext(requestcontext.WithUser(req.Context(), "u1", "a@b.com"))

	rr := f.do(t, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "123-45-6789", handlerBody["ssn"], "handler must still read the full body")

	records := f.store.List()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "a@b.com", rec.UserEmail)
	assert.Equal(t, "42", rec.ResourceID)
	assert.Equal(t, "v7", rec.VehicleID)
	assert.Equal(t, "d9", rec.DealID)
	assert.Equal(t, "1.2.3.4", rec.IPAddress)
	assert.Equal(t, "/buyers/42?dealId=d9", rec.URL)
	assert.Equal(t, http.MethodPut, rec.Method)
	assert.Equal(t, audit.StatusSuccess, rec.Status)
	assert.Equal(t, []string{"firstName", "ssn", "vehicleId"}, rec.Metadata.BodyKeys)
	assert.Equal(t, map[string]string{"id": "42"}, rec.Metadata.Params)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123-45-6789")
	assert.NotContains(t, string(raw), "Ann")
}

func TestHandle_FailureRendersOriginalError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta,
		func(w http.ResponseWriter, r *http.Request) error {
			return dErrors.New(dErrors.CodeNotFound, "not found")
		}))

	rr := f.do(t, httptest.NewRequest(http.MethodPut, "/buyers/42", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not_found","error_description":"not found"}`, rr.Body.String())

	records := f.store.List()
	require.Len(t, records, 1)
	assert.Equal(t, audit.StatusFailure, records[0].Status)
	assert.Equal(t, "not found", records[0].ErrorMessage)
	assert.Equal(t, http.StatusNotFound, records[0].ErrorCode)
	assert.Equal(t, audit.AnonymousUserID, records[0].UserID)
	assert.Equal(t, []string{}, records[0].Metadata.BodyKeys)
}

func TestHandle_UndeclaredRouteNotAudited(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mw.Handle(f.router, http.MethodGet, "/vehicles/{vehicleId}", nil,
		func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}))

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/vehicles/v1", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, f.store.Len())
}

func TestHandle_StoreOutageInvisibleToCaller(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(io.ErrUnexpectedEOF)
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta,
		func(w http.ResponseWriter, r *http.Request) error {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return nil
		}))

	rr := f.do(t, httptest.NewRequest(http.MethodPut, "/buyers/42", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Zero(t, f.store.Len())
}

func TestHandle_FormBodyKeys(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mw.Handle(f.router, http.MethodPost, "/deals", &audit.Metadata{
		Action: audit.ActionCreate, Resource: "deal",
	}, func(w http.ResponseWriter, r *http.Request) error {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "b1", r.PostForm.Get("buyerId"))
		w.WriteHeader(http.StatusCreated)
		return nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/deals", strings.NewReader("buyerId=b1&amount=100"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := f.do(t, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	records := f.store.List()
	require.Len(t, records, 1)
	assert.Equal(t, "b1", records[0].BuyerID)
	assert.Equal(t, []string{"amount", "buyerId"}, records[0].Metadata.BodyKeys)
}

func TestHandle_InvalidBodyStillAudited(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta,
		func(w http.ResponseWriter, r *http.Request) error {
			_, err := httputil.DecodeJSON[map[string]any](r)
			return err
		}))

	rr := f.do(t, httptest.NewRequest(http.MethodPut, "/buyers/42", strings.NewReader(`[1,2`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	records := f.store.List()
	require.Len(t, records, 1)
	assert.Equal(t, http.StatusBadRequest, records[0].ErrorCode)
	assert.Empty(t, records[0].Metadata.BodyKeys)
}

func TestHandle_OversizedBodyPassesThrough(t *testing.T) {
	f := newFixture(t)
	var n int
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta,
		func(w http.ResponseWriter, r *http.Request) error {
			b, err := io.ReadAll(r.Body)
			n = len(b)
			return err
		}))

	big := `{"notes":"` + strings.Repeat("x", MaxCapturedBody) + `"}`
	f.do(t, httptest.NewRequest(http.MethodPut, "/buyers/42", strings.NewReader(big)))

	assert.Equal(t, len(big), n)
	records := f.store.List()
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Metadata.BodyKeys)
}

func TestHandle_DuplicateDeclarationRejected(t *testing.T) {
	f := newFixture(t)
	noop := func(w http.ResponseWriter, r *http.Request) error { return nil }
	require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{id}", buyerMeta, noop))

	err := f.mw.Handle(chi.NewRouter(), http.MethodPut, "/buyers/{id}", buyerMeta, noop)
	assert.ErrorIs(t, err, audit.ErrDuplicateDeclaration)
}

func TestHandle_IDPrecedence(t *testing.T) {
	testutil.Given(t, "a buyer id in path, body and query", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.mw.Handle(f.router, http.MethodPut, "/buyers/{buyerId}/deals/{id}", &audit.Metadata{
			Action: audit.ActionUpdate, Resource: "deal",
		}, func(w http.ResponseWriter, r *http.Request) error { return nil }))

		req := httptest.NewRequest(http.MethodPut, "/buyers/from-path/deals/d1?buyerId=from-query&vehicleId=v-query",
			strings.NewReader(`{"buyerId":"from-body","vehicleId":"v-body","dealId":42}`))
		req = testutil.WithUser(req, "u1", "a@b.com")
		req = testutil.WithClient(req, "9.9.9.9", "curl/8.0")
		req = testutil.WithRequestID(req, "req-7")

		testutil.When(t, "the route is invoked", func(t *testing.T) {
			f.do(t, req)
			records := f.store.List()
			require.Len(t, records, 1)
			rec := records[0]

			testutil.Then(t, "path beats body and body beats query", func(t *testing.T) {
				assert.Equal(t, "d1", rec.ResourceID)
				assert.Equal(t, "from-path", rec.BuyerID)
				assert.Equal(t, "v-body", rec.VehicleID)
				assert.Equal(t, "42", rec.DealID)
			})
			testutil.Then(t, "request context comes from the middleware values", func(t *testing.T) {
				assert.Equal(t, "9.9.9.9", rec.IPAddress)
				assert.Equal(t, "curl/8.0", rec.UserAgent)
				assert.Equal(t, "req-7", rec.RequestID)
				assert.Equal(t, "a@b.com", rec.UserEmail)
			})
		})
	})
}
