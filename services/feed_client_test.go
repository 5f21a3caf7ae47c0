package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"challengeStreakAPI/internal/types/reaction"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type receivedMessage struct {
	Action string        `json:"action"`
	Feed   *FeedSnapshot `json:"feed"`
	Error  string        `json:"error"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(receivedMessage) bool) receivedMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg receivedMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestFeedClientStreamsSnapshotsAndActions(t *testing.T) {
	e := newTestEngine(t)
	p := e.newPost(t, "author")

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		view := NewEngagementView(p.ChallengeID, "user_a", e.posts, e.reactions, e.comments, 3)
		go NewFeedClient(context.Background(), view, e.reactions, e.comments, conn, "user_a").Run()
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	loaded := readUntil(t, conn, func(m receivedMessage) bool {
		return m.Action == "snapshot" && !m.Feed.Loading && len(m.Feed.Posts) == 1 &&
			m.Feed.Reactions[p.ID].State == FetchKnown
	})
	require.Equal(t, reaction.KindNone, loaded.Feed.Reactions[p.ID].Kind)

	require.NoError(t, conn.WriteJSON(FeedAction{Action: "toggle", PostID: p.ID, Kind: reaction.KindLike}))
	liked := readUntil(t, conn, func(m receivedMessage) bool {
		return m.Action == "snapshot" && m.Feed.Reactions[p.ID].Kind == reaction.KindLike
	})
	require.Equal(t, 1, liked.Feed.Posts[0].LikeCount)

	require.NoError(t, conn.WriteJSON(FeedAction{Action: "comment", PostID: p.ID, Content: "nice"}))
	commented := readUntil(t, conn, func(m receivedMessage) bool {
		return m.Action == "snapshot" && len(m.Feed.Comments[p.ID].Comments) == 1
	})
	require.Equal(t, 1, commented.Feed.Posts[0].CommentCount)

	require.NoError(t, conn.WriteJSON(FeedAction{Action: "dance"}))
	notice := readUntil(t, conn, func(m receivedMessage) bool { return m.Action == "error" })
	require.Contains(t, notice.Error, "unknown action")

	require.NoError(t, conn.WriteJSON(FeedAction{Action: "toggle", PostID: p.ID, Kind: "love"}))
	notice = readUntil(t, conn, func(m receivedMessage) bool { return m.Action == "error" })
	require.Contains(t, notice.Error, "validation failed")
}
