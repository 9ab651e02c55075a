package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/internal/store"
	"github.com/DoyleJ11/werewolf-backend/pkg/types"
)

type fakeGames struct {
	games     []store.GameRecord
	err       error
	lastLimit int
}

func (f *fakeGames) RecentGames(_ context.Context, limit int) ([]store.GameRecord, error) {
	f.lastLimit = limit
	return f.games, f.err
}

func newTestServer(t *testing.T, d Deps) (*httptest.Server, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if d.Hub == nil {
		d.Hub = hub.NewHub(ctx, hub.Options{})
	}
	srv := httptest.NewServer(SetupRoutes(d))
	t.Cleanup(srv.Close)
	return srv, d.Hub
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, _ := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetRoom(t *testing.T) {
	srv, h := newTestServer(t, Deps{})
	res, err := h.Create(context.Background(), "village", "alice", engine.Rule{WereWolves: 1, Villagers: 1}, make(chan room.Snapshot, 8))
	require.NoError(t, err)

	resp, body := get(t, srv.URL+"/rooms/"+res.Room.ID())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got roomResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, res.Room.ID(), got.Room.ID)
	assert.Equal(t, "village", got.Room.Name)
	require.Len(t, got.Users, 1)
	assert.Equal(t, "alice", got.Users[0].Name)
	assert.Empty(t, got.Users[0].Role)
}

func TestGetRoom_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, body := get(t, srv.URL+"/rooms/NOPE00")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, "RoomNotFound", msg.Error.Code)
}

func TestListGames(t *testing.T) {
	games := &fakeGames{games: []store.GameRecord{{RoomID: "AAAAAA", Status: "HumanWin", Days: 3}}}
	srv, _ := newTestServer(t, Deps{Games: games})

	cases := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", http.StatusOK, defaultGamesLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=5000", http.StatusOK, maxGamesLimit},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			games.lastLimit = 0
			resp, body := get(t, srv.URL+"/games"+tc.query)
			require.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantLimit, games.lastLimit)
			if tc.wantStatus == http.StatusOK {
				var list []store.GameRecord
				require.NoError(t, json.Unmarshal(body, &list))
				require.Len(t, list, 1)
				assert.Equal(t, "AAAAAA", list[0].RoomID)
			}
		})
	}
}

func TestListGames_StoreFailure(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Games: &fakeGames{err: errors.New("db down")}})
	resp, _ := get(t, srv.URL+"/games")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestOptionalRoutes(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, _ := get(t, srv.URL+"/games")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	srv, _ := newTestServer(t, Deps{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	get(t, srv.URL+"/healthz")
	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "werewolf_rooms_active")
	assert.Contains(t, string(body), `http_requests_total{method="GET",route="/healthz",status="200"}`)
}
