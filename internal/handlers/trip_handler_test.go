package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trip-collab-service/internal/locks"
	"trip-collab-service/internal/mocks"
	"trip-collab-service/internal/models"
	"trip-collab-service/internal/ws"
)

func setupTripRouter(handler *TripHandler, callerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("memberID", callerID)
		c.Next()
	})
	r.POST("/trips", handler.CreateTrip)
	r.GET("/trips/:trip_id/members", handler.ListMembers)
	r.PUT("/trips/:trip_id/members/:user_id", handler.AssignMember)
	r.DELETE("/trips/:trip_id/members/:user_id", handler.RemoveMember)
	return r
}

func newTripHandler(membership *mocks.MembershipRepositoryMock) *TripHandler {
	return NewTripHandler(membership, ws.NewHub(), locks.NewKeyedMutex(), nil)
}

func TestCreateTripSuccess(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	membership.On("CreateTrip", mock.Anything, "Tokyo", "JPY", "alice").
		Return(models.Trip{ID: "t1", Name: "Tokyo", Currency: "JPY", CreatedBy: "alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBufferString(`{"name":"Tokyo","currency":"JPY"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var trip models.Trip
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trip))
	assert.Equal(t, "t1", trip.ID)
	membership.AssertExpectations(t)
}

func TestCreateTripMissingFields(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	req := httptest.NewRequest(http.MethodPost, "/trips", bytes.NewBufferString(`{"name":"Tokyo"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	membership.AssertNotCalled(t, "CreateTrip")
}

func TestListMembersNonMember(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "mallory")

	membership.On("RoleOf", mock.Anything, "t1", "mallory").Return(models.Role(""), false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/trips/t1/members", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	membership.AssertExpectations(t)
}

func TestListMembersSuccess(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "bob")

	membership.On("RoleOf", mock.Anything, "t1", "bob").Return(models.RoleViewer, true, nil).Once()
	membership.On("ListMembers", mock.Anything, "t1").
		Return([]models.Member{{TripID: "t1", UserID: "alice", Role: models.RoleOwner}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/trips/t1/members", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	membership.AssertExpectations(t)
}

func TestAssignMemberInvite(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	membership.On("RoleOf", mock.Anything, "t1", "alice").Return(models.RoleOwner, true, nil).Once()
	membership.On("RoleOf", mock.Anything, "t1", "bob").Return(models.Role(""), false, nil).Once()
	membership.On("Assign", mock.Anything, "t1", "bob", models.RoleEditor).
		Return(models.Member{TripID: "t1", UserID: "bob", Role: models.RoleEditor}, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/trips/t1/members/bob", bytes.NewBufferString(`{"role":"editor"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	membership.AssertExpectations(t)
}

func TestAssignMemberEditorForbidden(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "carol")

	membership.On("RoleOf", mock.Anything, "t1", "carol").Return(models.RoleEditor, true, nil).Once()
	membership.On("RoleOf", mock.Anything, "t1", "bob").Return(models.Role(""), false, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/trips/t1/members/bob", bytes.NewBufferString(`{"role":"viewer"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	membership.AssertNotCalled(t, "Assign")
}

func TestAssignMemberInvalidRole(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	req := httptest.NewRequest(http.MethodPut, "/trips/t1/members/bob", bytes.NewBufferString(`{"role":"superuser"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	membership.AssertNotCalled(t, "Assign")
}

func TestAssignMemberOwnerProtected(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	membership.On("RoleOf", mock.Anything, "t1", "alice").Return(models.RoleOwner, true, nil).Once()
	membership.On("RoleOf", mock.Anything, "t1", "alice").Return(models.RoleOwner, true, nil).Once()

	// Even the owner cannot demote itself.
	req := httptest.NewRequest(http.MethodPut, "/trips/t1/members/alice", bytes.NewBufferString(`{"role":"viewer"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	membership.AssertNotCalled(t, "Assign")
}

func TestRemoveMemberSuccess(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "alice")

	membership.On("RoleOf", mock.Anything, "t1", "alice").Return(models.RoleAdmin, true, nil).Once()
	membership.On("Revoke", mock.Anything, "t1", "bob").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/trips/t1/members/bob", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	membership.AssertExpectations(t)
}

func TestRemoveMemberViewerForbidden(t *testing.T) {
	membership := new(mocks.MembershipRepositoryMock)
	router := setupTripRouter(newTripHandler(membership), "dave")

	membership.On("RoleOf", mock.Anything, "t1", "dave").Return(models.RoleViewer, true, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/trips/t1/members/bob", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	membership.AssertNotCalled(t, "Revoke")
}
