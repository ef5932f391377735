package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impfportal/internal/booking"
	"impfportal/internal/disease"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
)

const testAdminToken = "test-admin-token"

var testDay = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type adminFixture struct {
	router http.Handler
	store  *slots.InMemoryStore
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := slots.NewInMemoryStore()
	coordinator := booking.NewCoordinator(store, booking.NewInMemoryAppointmentStore(), logger,
		booking.WithClock(func() time.Time { return testDay }))

	registry := disease.NewRegistry()
	for _, rules := range disease.Defaults() {
		require.NoError(t, registry.Register(rules))
	}

	handler := New(store, coordinator, registry, testAdminToken, logger)
	router := chi.NewRouter()
	handler.Register(router)
	return &adminFixture{router: router, store: store}
}

func (f *adminFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Admin-Token", testAdminToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *adminFixture) createSite(t *testing.T, managed bool) domain.SiteID {
	t.Helper()
	w := f.do(t, http.MethodPost, "/admin/sites", createSiteRequest{Name: "Impfzentrum Mitte", Managed: managed})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var site slots.Site
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &site))
	return site.ID
}

func Test_Admin_RequiresToken(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/sites", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func Test_Admin_CreateAndListSites(t *testing.T) {
	f := newAdminFixture(t)
	f.createSite(t, true)

	w := f.do(t, http.MethodGet, "/admin/sites", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp sitesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sites, 1)
	assert.Equal(t, "Impfzentrum Mitte", resp.Sites[0].Name)
	assert.True(t, resp.Sites[0].Managed)
}

func Test_Admin_CreateSite_RequiresName(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPost, "/admin/sites", createSiteRequest{Managed: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func Test_Admin_CreateSlots_Batch(t *testing.T) {
	f := newAdminFixture(t)
	siteID := f.createSite(t, true)

	w := f.do(t, http.MethodPost, "/admin/sites/"+siteID.String()+"/slots", createSlotsRequest{Slots: []slotSpec{
		{Position: "dose1", StartAt: testDay.AddDate(0, 0, 1), EndAt: testDay.AddDate(0, 0, 1).Add(time.Hour), Capacity: 20},
		{Position: "dose2", StartAt: testDay.AddDate(0, 0, 30), EndAt: testDay.AddDate(0, 0, 30).Add(time.Hour), Capacity: 20},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createSlotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Created, 2)
	assert.Nil(t, resp.Failed)
}

func Test_Admin_CreateSlots_StopsAtFirstInvalid(t *testing.T) {
	f := newAdminFixture(t)
	siteID := f.createSite(t, true)

	w := f.do(t, http.MethodPost, "/admin/sites/"+siteID.String()+"/slots", createSlotsRequest{Slots: []slotSpec{
		{Position: "dose1", StartAt: testDay.AddDate(0, 0, 1), EndAt: testDay.AddDate(0, 0, 1).Add(time.Hour), Capacity: 20},
		{Position: "dose1", StartAt: testDay.AddDate(0, 0, 2), EndAt: testDay.AddDate(0, 0, 2).Add(time.Hour), Capacity: 0},
		{Position: "dose1", StartAt: testDay.AddDate(0, 0, 3), EndAt: testDay.AddDate(0, 0, 3).Add(time.Hour), Capacity: 20},
	}})
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var resp createSlotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Created, 1)
	require.NotNil(t, resp.Failed)
	assert.Equal(t, 1, resp.Failed.Index)
}

func Test_Admin_CreateSlots_UnknownSite(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPost, "/admin/sites/"+domain.NewSiteID().String()+"/slots", createSlotsRequest{Slots: []slotSpec{
		{Position: "dose1", StartAt: testDay, EndAt: testDay.Add(time.Hour), Capacity: 5},
	}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_Admin_NextFreeSlot(t *testing.T) {
	f := newAdminFixture(t)
	siteID := f.createSite(t, true)

	earlier := &slots.Slot{ID: domain.NewSlotID(), SiteID: siteID, Position: disease.PositionDose1,
		StartAt: testDay.AddDate(0, 0, 2), EndAt: testDay.AddDate(0, 0, 2).Add(time.Hour), Capacity: 10}
	later := &slots.Slot{ID: domain.NewSlotID(), SiteID: siteID, Position: disease.PositionDose1,
		StartAt: testDay.AddDate(0, 0, 5), EndAt: testDay.AddDate(0, 0, 5).Add(time.Hour), Capacity: 10}
	require.NoError(t, f.store.CreateSlot(context.Background(), earlier))
	require.NoError(t, f.store.CreateSlot(context.Background(), later))

	w := f.do(t, http.MethodGet, "/admin/sites/"+siteID.String()+"/next-free?disease=covid19&position=dose1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp nextFreeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Slot)
	assert.Equal(t, earlier.ID, resp.Slot.ID)
}

func Test_Admin_NextFreeSlot_PairedIntervalWindow(t *testing.T) {
	f := newAdminFixture(t)
	siteID := f.createSite(t, true)

	dose1 := &slots.Slot{ID: domain.NewSlotID(), SiteID: siteID, Position: disease.PositionDose1,
		StartAt: testDay.AddDate(0, 0, 1), EndAt: testDay.AddDate(0, 0, 1).Add(time.Hour), Capacity: 10}
	tooEarly := &slots.Slot{ID: domain.NewSlotID(), SiteID: siteID, Position: disease.PositionDose2,
		StartAt: testDay.AddDate(0, 0, 10), EndAt: testDay.AddDate(0, 0, 10).Add(time.Hour), Capacity: 10}
	inWindow := &slots.Slot{ID: domain.NewSlotID(), SiteID: siteID, Position: disease.PositionDose2,
		StartAt: testDay.AddDate(0, 0, 32), EndAt: testDay.AddDate(0, 0, 32).Add(time.Hour), Capacity: 10}
	for _, slot := range []*slots.Slot{dose1, tooEarly, inWindow} {
		require.NoError(t, f.store.CreateSlot(context.Background(), slot))
	}

	w := f.do(t, http.MethodGet,
		"/admin/sites/"+siteID.String()+"/next-free?disease=covid19&position=dose2&paired_slot_id="+dose1.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp nextFreeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Slot)
	assert.Equal(t, inWindow.ID, resp.Slot.ID)
}

func Test_Admin_NextFreeSlot_NoneInWindow(t *testing.T) {
	f := newAdminFixture(t)
	siteID := f.createSite(t, true)

	w := f.do(t, http.MethodGet, "/admin/sites/"+siteID.String()+"/next-free?disease=covid19&position=dose1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
