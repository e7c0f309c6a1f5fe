package ws

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChannel(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAdapter_SendBroadcastsToConnectedClientsOnChannel(t *testing.T) {
	a := New(nil, nil)
	server := httptest.NewServer(a.Handler("chan1"))
	defer server.Close()

	conn := dialChannel(t, server)
	time.Sleep(20 * time.Millisecond) // let the handler finish registering the client

	require.NoError(t, a.Send(context.Background(), "chan1", "hello"))

	var got frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "chan1", got.ChannelID)
	assert.Equal(t, "hello", got.Message)
}

func TestAdapter_SendToChannelWithNoClientsIsANoOp(t *testing.T) {
	a := New(nil, nil)
	err := a.Send(context.Background(), "empty-channel", "hello")
	assert.NoError(t, err)
}

func TestAdapter_FetchHistoryReturnsRecentMessagesInOrder(t *testing.T) {
	a := New(nil, nil)
	require.NoError(t, a.Send(context.Background(), "chan1", "one"))
	require.NoError(t, a.Send(context.Background(), "chan1", "two"))
	require.NoError(t, a.Send(context.Background(), "chan1", "three"))

	hist, err := a.FetchHistory(context.Background(), "chan1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, hist)
}

func TestAdapter_FetchHistoryRejectsNonPositiveLimit(t *testing.T) {
	a := New(nil, nil)
	_, err := a.FetchHistory(context.Background(), "chan1", 0)
	assert.Error(t, err)
}

func TestAdapter_InboundFrameInvokesOnInboundCallback(t *testing.T) {
	a := New(nil, nil)
	received := make(chan InboundMessage, 1)
	a.OnInbound = func(m InboundMessage) { received <- m }

	server := httptest.NewServer(a.Handler("chan1"))
	defer server.Close()

	conn := dialChannel(t, server)
	require.NoError(t, conn.WriteJSON(frame{ChannelID: "chan1", SubjectID: "sub1", Message: "hi"}))

	select {
	case m := <-received:
		assert.Equal(t, "chan1", m.ChannelID)
		assert.Equal(t, "sub1", m.SubjectID)
		assert.Equal(t, "hi", m.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound callback")
	}
}
