package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/roomsync/internal/models"
)

func strp(s string) *string { return &s }

func TestJoinedRooms(t *testing.T) {
	instance := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/room/joined", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, instance.String(), r.Header.Get(InstanceHeader))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"r1","name":"General","photo":null,"lastMessage":"hi","lastMessageTime":"2024-05-01T12:00:00.000Z"},
			{"id":"r2","name":"Random","photo":"https://img.example/r2.png","lastMessage":null,"lastMessageTime":null}
		]`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", "tok", WithInstanceID(instance))
	rooms, err := c.JoinedRooms(context.Background())

	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, models.Room{
		ID:              "r1",
		Name:            "General",
		LastMessage:     strp("hi"),
		LastMessageTime: strp("2024-05-01T12:00:00.000Z"),
	}, rooms[0])
	assert.Equal(t, "https://img.example/r2.png", *rooms[1].Photo)
	assert.Nil(t, rooms[1].LastMessage)
}

func TestJoinedRoomsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message":"maintenance"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").JoinedRooms(context.Background())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "maintenance", se.Message)
	assert.True(t, Retryable(err))
}

func TestJoinedRoomsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not":"a list"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").JoinedRooms(context.Background())

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.False(t, Retryable(err))
}

func TestRoomDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/room/r%201", r.URL.EscapedPath())
		fmt.Fprint(w, `{"id":"r 1","name":"General","description":"all hands",
			"members":[{"id":"u1","userName":"alice"},{"id":"u2","userName":"bob"}],
			"_count":{"members":2}}`)
	}))
	defer srv.Close()

	details, err := New(srv.URL, "").Room(context.Background(), "r 1")

	require.NoError(t, err)
	assert.Equal(t, "all hands", details.Description)
	assert.Equal(t, 2, details.Count.Members)
	assert.Equal(t, []models.Member{{ID: "u1", UserName: "alice"}, {ID: "u2", UserName: "bob"}}, details.Members)
}

func TestUpdateRoomSendsOnlySetFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/room/r1/update", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(srv.URL, "").UpdateRoom(context.Background(), "r1", models.RoomUpdate{Name: strp("New name")})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "New name"}, body)
}

func TestLeaveRoom(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/room/r1/leave", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "").LeaveRoom(context.Background(), "r1"))
	assert.True(t, called)
}

func TestLeaveRoomForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not a member", http.StatusForbidden)
	}))
	defer srv.Close()

	err := New(srv.URL, "").LeaveRoom(context.Background(), "r1")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "not a member", se.Message)
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusUnauthorized}))
}

func TestUnreachableServerIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base, "").JoinedRooms(context.Background())

	require.Error(t, err)
	assert.True(t, Retryable(err))
}
