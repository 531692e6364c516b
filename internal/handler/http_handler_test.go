package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/relay"
	"github.com/weiawesome/wes-io-live/internal/room"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/internal/transport/transporttest"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

const ownerSnapshot = `{"user":{"userId":"o1","userName":"owen","uid":1},` +
	`"room":{"owner":{"userId":"o1","userName":"owen","uid":1},"channelName":"ch-1",` +
	`"coVideoSeats":[{"seat":{"no":1,"state":0}},{"seat":{"no":2,"state":0}}]}}`

type testServer struct {
	router     *gin.Engine
	dispatcher *transporttest.Dispatcher
	manager    *room.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := transporttest.NewDispatcher()
	d.Respond(transport.CmdLiveJoin, json.RawMessage(ownerSnapshot))
	ps := transporttest.NewPubSub()
	m := room.NewManager(room.Deps{
		Dispatcher: d,
		Channels: func(p loop.Poster) transport.Channel {
			return transport.NewPubSubChannel(ps, "o1", p)
		},
		Relay: relay.NewManager(relay.NewPubSubRelayer(ps)),
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	r := gin.New()
	NewHandler(m, 2*time.Second).RegisterRoutes(r)
	return &testServer{router: r, dispatcher: d, manager: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, response.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestJoinAndState(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/v1/rooms/R1", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/rooms/R1/join", "")
	require.Equal(t, http.StatusOK, code)
	var snap struct {
		Local struct {
			Kind string `json:"kind"`
		} `json:"local"`
		Seats []json.RawMessage `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "owner", snap.Local.Kind)
	assert.Len(t, snap.Seats, 2)

	code, _ = s.do(t, http.MethodGet, "/api/v1/rooms/R1/seats", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/rooms/R1/leave", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/rooms/R1", "")
	assert.Equal(t, http.StatusNotFound, code)
	_, active := s.manager.Active()
	assert.False(t, active)
}

func TestOperationStatusCodes(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/rooms/R1/join", "")
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "invite", method: http.MethodPost, path: "/invitations", body: `{"user_id":"u2","seat_index":1}`, want: http.StatusOK},
		{name: "invite again", method: http.MethodPost, path: "/invitations", body: `{"user_id":"u2","seat_index":1}`, want: http.StatusConflict},
		{name: "invite without seat", method: http.MethodPost, path: "/invitations", body: `{"user_id":"u3"}`, want: http.StatusBadRequest},
		{name: "owner applies", method: http.MethodPost, path: "/applications", body: `{"seat_index":1}`, want: http.StatusForbidden},
		{name: "unknown application", method: http.MethodPost, path: "/applications/u9/accept", want: http.StatusNotFound},
		{name: "bad seat index", method: http.MethodPut, path: "/seats/0", body: `{"state":2}`, want: http.StatusBadRequest},
		{name: "unknown seat", method: http.MethodPut, path: "/seats/7", body: `{"state":2}`, want: http.StatusBadRequest},
		{name: "close seat", method: http.MethodPut, path: "/seats/2", body: `{"state":2}`, want: http.StatusOK},
		{name: "battle invite", method: http.MethodPost, path: "/battle", body: `{"room_id":"R2"}`, want: http.StatusOK},
		{name: "battle own room", method: http.MethodPost, path: "/battle", body: `{"room_id":"R1"}`, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, "/api/v1/rooms/R1"+tt.path, tt.body)
			assert.Equal(t, tt.want, code, env.Message())
		})
	}

	assert.Len(t, s.dispatcher.SentNamed(transport.CmdCoHostAction), 1)
	assert.Len(t, s.dispatcher.SentNamed(transport.CmdSeatStateChange), 1)
}

func TestTransportFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/rooms/R1/join", "")
	require.Equal(t, http.StatusOK, code)

	s.dispatcher.Fail(transport.CmdBattleAction, domain.ErrTransport)
	code, env := s.do(t, http.MethodPost, "/api/v1/rooms/R1/battle/R2/accept", "")
	assert.Equal(t, http.StatusBadGateway, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UPSTREAM_ERROR", env.Error.Code)
}

func TestWebSocketRequiresRoom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewWSHandler(nil, config.WebSocketConfig{}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
