package socialgraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *NeynarClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewNeynarClient(srv.URL, "test-key", 100, 2*time.Second)
}

func TestNeynarFollowUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/by_username", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "buildwithbase", r.URL.Query().Get("username"))
		following := r.URL.Query().Get("viewer_fid") == "42"
		w.Header().Set("Content-Type", "application/json")
		if following {
			w.Write([]byte(`{"user":{"fid":9,"viewer_context":{"following":true}}}`))
			return
		}
		w.Write([]byte(`{"user":{"fid":9,"viewer_context":{"following":false}}}`))
	})

	target := domain.TargetData{UserToFollow: "@buildwithbase"}
	out, err := c.CheckAction(context.Background(), "fid:42", domain.ActionFollowUser, target)
	require.NoError(t, err)
	assert.Equal(t, Satisfied, out)

	out, err = c.CheckAction(context.Background(), "7", domain.ActionFollowUser, target)
	require.NoError(t, err)
	assert.Equal(t, NotSatisfied, out)
}

func TestNeynarCastReactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/cast", r.URL.Path)
		assert.Equal(t, "hash", r.URL.Query().Get("type"))
		w.Write([]byte(`{"cast":{"hash":"0xabc","viewer_context":{"liked":true,"recasted":false}}}`))
	})

	target := domain.TargetData{CastHashToLike: "0xabc", CastHashToRecast: "0xabc"}
	out, err := c.CheckAction(context.Background(), "42", domain.ActionLikeCast, target)
	require.NoError(t, err)
	assert.Equal(t, Satisfied, out)

	out, err = c.CheckAction(context.Background(), "42", domain.ActionRecastCast, target)
	require.NoError(t, err)
	assert.Equal(t, NotSatisfied, out)
}

func TestNeynarChannel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/channel", r.URL.Path)
		assert.Equal(t, "base", r.URL.Query().Get("id"))
		w.Write([]byte(`{"channel":{"id":"base","viewer_context":{"following":true}}}`))
	})

	out, err := c.CheckAction(context.Background(), "42", domain.ActionJoinChannel, domain.TargetData{ChannelToJoin: "/base"})
	require.NoError(t, err)
	assert.Equal(t, Satisfied, out)
}

func TestNeynarStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		want    Outcome
		wantErr bool
	}{
		{http.StatusNotFound, NotSatisfied, false},
		{http.StatusTooManyRequests, Unknown, true},
		{http.StatusBadGateway, Unknown, true},
		{http.StatusUnauthorized, Unknown, true},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		out, err := c.CheckAction(context.Background(), "42", domain.ActionFollowUser, domain.TargetData{UserToFollow: "dwr"})
		assert.Equal(t, tc.want, out, "status %d", tc.status)
		if tc.wantErr {
			assert.Error(t, err, "status %d", tc.status)
		} else {
			assert.NoError(t, err, "status %d", tc.status)
		}
	}
}

func TestNeynarMalformedBodyIsUnknown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	out, err := c.CheckAction(context.Background(), "42", domain.ActionFollowUser, domain.TargetData{UserToFollow: "dwr"})
	assert.Error(t, err)
	assert.Equal(t, Unknown, out)
}

func TestNeynarTransportErrorIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewNeynarClient(srv.URL, "k", 100, time.Second)
	srv.Close()

	out, err := c.CheckAction(context.Background(), "42", domain.ActionFollowUser, domain.TargetData{UserToFollow: "dwr"})
	assert.Error(t, err)
	assert.Equal(t, Unknown, out)
}

func TestNeynarRejectsBadParticipant(t *testing.T) {
	c := NewNeynarClient("http://127.0.0.1:0", "k", 1, time.Second)
	out, err := c.CheckAction(context.Background(), "alice", domain.ActionFollowUser, domain.TargetData{UserToFollow: "dwr"})
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)
	assert.Equal(t, NotSatisfied, out)
}
