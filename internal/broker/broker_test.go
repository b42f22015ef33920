package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testBroker struct {
	srv *httptest.Server
	hub *Hub
}

func startBroker(t *testing.T, registry Registry, relay Relay, keys KeyValidator) *testBroker {
	t.Helper()
	hub := NewHub(registry, relay, 150*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(NewRouter(hub, keys, "/", nil))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &testBroker{srv: srv, hub: hub}
}

func memoryBroker(t *testing.T) *testBroker {
	return startBroker(t, NewMemoryRegistry(), nil, KeyValidator{Static: DefaultKey})
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (b *testBroker) dial(t *testing.T, id, token, key string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/peerjs?id=" + id + "&token=" + token + "&key=" + key
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) read() *Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return &msg
}

func (c *wsClient) expect(typ string) *Message {
	c.t.Helper()
	msg := c.read()
	require.Equal(c.t, typ, msg.Type, "payload %s", msg.Payload)
	return msg
}

func (c *wsClient) send(typ, dst string, payload string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(Message{Type: typ, Dst: dst, Payload: json.RawMessage(payload)}))
}

func TestHealth(t *testing.T) {
	b := memoryBroker(t)
	resp, err := http.Get(b.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchID(t *testing.T) {
	b := memoryBroker(t)

	resp, err := http.Get(b.srv.URL + "/peerjs/id")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, strings.TrimSpace(string(body)), 36)

	resp, err = http.Get(b.srv.URL + "/wrong/id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOpenAndIDTaken(t *testing.T) {
	b := memoryBroker(t)

	host := b.dial(t, "room1", "tok-a", DefaultKey)
	host.expect(TypeOpen)

	rival := b.dial(t, "room1", "tok-b", DefaultKey)
	rival.expect(TypeIDTaken)

	// The owner's token may reclaim its id.
	again := b.dial(t, "room1", "tok-a", DefaultKey)
	again.expect(TypeOpen)
}

func TestRejectsBadHandshake(t *testing.T) {
	b := memoryBroker(t)

	b.dial(t, "room1", "tok", "nope").expect(TypeError)
	b.dial(t, "bad%20id%21", "tok", DefaultKey).expect(TypeError)
	b.dial(t, "room1", "", DefaultKey).expect(TypeError)
}

func TestRelaysWithSource(t *testing.T) {
	b := memoryBroker(t)
	host := b.dial(t, "room1", "a", DefaultKey)
	host.expect(TypeOpen)
	guest := b.dial(t, "guest1", "b", DefaultKey)
	guest.expect(TypeOpen)

	guest.send(TypeOffer, "room1", `{"type":"data","connectionId":"dc_1"}`)
	got := host.expect(TypeOffer)
	assert.Equal(t, "guest1", got.Src)
	assert.JSONEq(t, `{"type":"data","connectionId":"dc_1"}`, string(got.Payload))

	host.send(TypeAnswer, "guest1", `{"type":"data","connectionId":"dc_1"}`)
	assert.Equal(t, "room1", guest.expect(TypeAnswer).Src)
}

func TestOfferToAbsentPeerExpires(t *testing.T) {
	b := memoryBroker(t)
	guest := b.dial(t, "guest1", "b", DefaultKey)
	guest.expect(TypeOpen)

	guest.send(TypeOffer, "nobody", `{"type":"data","connectionId":"dc_1"}`)
	got := guest.expect(TypeExpire)
	assert.Equal(t, "nobody", got.Src)
}

func TestQueuedOfferDeliveredOnOpen(t *testing.T) {
	b := memoryBroker(t)
	guest := b.dial(t, "guest1", "b", DefaultKey)
	guest.expect(TypeOpen)
	guest.send(TypeOffer, "late", `{"type":"data","connectionId":"dc_1"}`)

	late := b.dial(t, "late", "c", DefaultKey)
	late.expect(TypeOpen)
	assert.Equal(t, "guest1", late.expect(TypeOffer).Src)
}

func TestLeaveSentToContacts(t *testing.T) {
	b := memoryBroker(t)
	host := b.dial(t, "room1", "a", DefaultKey)
	host.expect(TypeOpen)
	guest := b.dial(t, "guest1", "b", DefaultKey)
	guest.expect(TypeOpen)

	guest.send(TypeOffer, "room1", `{"type":"data","connectionId":"dc_1"}`)
	host.expect(TypeOffer)

	guest.conn.Close()
	assert.Equal(t, "guest1", host.expect(TypeLeave).Src)

	// The id is free again.
	b.dial(t, "guest1", "z", DefaultKey).expect(TypeOpen)
}

func TestHeartbeatIsSilent(t *testing.T) {
	b := memoryBroker(t)
	host := b.dial(t, "room1", "a", DefaultKey)
	host.expect(TypeOpen)
	guest := b.dial(t, "guest1", "b", DefaultKey)
	guest.expect(TypeOpen)

	host.send(TypeHeartbeat, "", "")
	guest.send(TypeCandidate, "room1", `{"type":"data","connectionId":"dc_1"}`)
	host.expect(TypeCandidate)
}

func TestJWTKeys(t *testing.T) {
	keys := KeyValidator{Secret: "s3cret"}
	b := startBroker(t, NewMemoryRegistry(), nil, keys)

	key, err := IssueKey("s3cret", "ci", time.Hour)
	require.NoError(t, err)
	claims, err := keys.Validate(key)
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Name)

	b.dial(t, "room1", "a", key).expect(TypeOpen)
	b.dial(t, "room2", "a", DefaultKey).expect(TypeError)

	forged, err := IssueKey("other", "ci", time.Hour)
	require.NoError(t, err)
	_, err = keys.Validate(forged)
	assert.ErrorIs(t, err, ErrInvalidKey)

	past := time.Now().Add(-time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, KeyClaims{
		Name:             "ci",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(past)},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = keys.Validate(expired)
	assert.Error(t, err)

	_, err = IssueKey("", "ci", 0)
	assert.Error(t, err)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisRegistry(t *testing.T) {
	mr, rdb := newRedis(t)
	reg := NewRedisRegistry(rdb, time.Minute)
	ctx := context.Background()

	ok, err := reg.Claim(ctx, "room1", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Claim(ctx, "room1", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.Claim(ctx, "room1", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	// A stranger's release leaves the claim alone.
	require.NoError(t, reg.Release(ctx, "room1", "b"))
	exists, err := reg.Exists(ctx, "room1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, reg.Release(ctx, "room1", "a"))
	exists, err = reg.Exists(ctx, "room1")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = reg.Claim(ctx, "room2", "a")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Minute)
	ok, err = reg.Claim(ctx, "room2", "b")
	require.NoError(t, err)
	assert.True(t, ok, "claims of dead clients expire")
}

func TestRedisRegistryRefresh(t *testing.T) {
	mr, rdb := newRedis(t)
	reg := NewRedisRegistry(rdb, time.Minute)
	ctx := context.Background()

	_, err := reg.Claim(ctx, "room1", "a")
	require.NoError(t, err)
	mr.FastForward(50 * time.Second)
	require.NoError(t, reg.Refresh(ctx, "room1", "a"))
	mr.FastForward(50 * time.Second)

	exists, err := reg.Exists(ctx, "room1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRelayAcrossInstances(t *testing.T) {
	_, rdb := newRedis(t)
	keys := KeyValidator{Static: DefaultKey}
	east := startBroker(t, NewRedisRegistry(rdb, time.Minute), NewRedisRelay(rdb, nil), keys)
	west := startBroker(t, NewRedisRegistry(rdb, time.Minute), NewRedisRelay(rdb, nil), keys)

	host := east.dial(t, "room1", "a", DefaultKey)
	host.expect(TypeOpen)

	// The id is claimed across instances.
	west.dial(t, "room1", "b", DefaultKey).expect(TypeIDTaken)

	guest := west.dial(t, "guest1", "c", DefaultKey)
	guest.expect(TypeOpen)
	guest.send(TypeOffer, "room1", `{"type":"data","connectionId":"dc_1"}`)
	assert.Equal(t, "guest1", host.expect(TypeOffer).Src)

	host.send(TypeAnswer, "guest1", `{"type":"data","connectionId":"dc_1"}`)
	assert.Equal(t, "room1", guest.expect(TypeAnswer).Src)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/", normalizePath("/"))
	assert.Equal(t, "/share", normalizePath("share/"))
}
