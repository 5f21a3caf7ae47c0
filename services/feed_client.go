package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"challengeStreakAPI/internal/types/reaction"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 2048
)

// FeedClient streams one EngagementView over a websocket. The view's
// snapshots go out through WritePump; ReadPump turns client actions into
// engine calls and folds their results back into the view.
type FeedClient struct {
	View      *EngagementView
	Reactions *ReactionService
	Comments  *CommentService
	Conn      *websocket.Conn
	UserID    string

	notices chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

type FeedAction struct {
	Action  string        `json:"action"`
	PostID  string        `json:"post_id"`
	Kind    reaction.Kind `json:"kind"`
	Content string        `json:"content"`
}

type feedMessage struct {
	Action string        `json:"action"`
	Feed   *FeedSnapshot `json:"feed,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func NewFeedClient(ctx context.Context, view *EngagementView, reactions *ReactionService, comments *CommentService, conn *websocket.Conn, userID string) *FeedClient {
	ctx, cancel := context.WithCancel(ctx)
	return &FeedClient{
		View:      view,
		Reactions: reactions,
		Comments:  comments,
		Conn:      conn,
		UserID:    userID,
		notices:   make(chan []byte, 16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run loads the feed and pumps until either side hangs up.
func (c *FeedClient) Run() {
	updates, unsubscribe := c.View.Subscribe()
	defer unsubscribe()

	go c.load()
	go c.ReadPump()
	c.WritePump(updates)
}

func (c *FeedClient) load() {
	if err := c.View.Load(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("FeedClient: failed to load feed for user %s: %v", c.UserID, err)
		c.notice("failed to load feed")
	}
}

// ReadPump handles messages coming FROM the client
func (c *FeedClient) ReadPump() {
	defer func() {
		c.cancel()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("FeedClient: read error for user %s: %v", c.UserID, err)
			}
			return
		}

		var action FeedAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.notice("malformed message")
			continue
		}
		c.handle(action)
	}
}

func (c *FeedClient) handle(action FeedAction) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	switch action.Action {
	case "refresh":
		go c.load()
	case "toggle":
		result, err := c.Reactions.Toggle(ctx, action.PostID, c.UserID, action.Kind)
		if err != nil {
			log.Printf("FeedClient: toggle on post %s failed: %v", action.PostID, err)
			c.notice(err.Error())
			return
		}
		c.View.ApplyToggle(result)
	case "comment":
		created, err := c.Comments.AddComment(ctx, action.PostID, c.UserID, action.Content)
		if err != nil {
			log.Printf("FeedClient: comment on post %s failed: %v", action.PostID, err)
			c.notice(err.Error())
			return
		}
		c.View.ApplyComment(created)
	default:
		c.notice("unknown action " + action.Action)
	}
}

func (c *FeedClient) notice(msg string) {
	data, err := json.Marshal(feedMessage{Action: "error", Error: msg})
	if err != nil {
		return
	}
	select {
	case c.notices <- data:
	default:
		log.Printf("FeedClient: dropping notice for user %s, buffer full", c.UserID)
	}
}

// WritePump handles messages going TO the client
func (c *FeedClient) WritePump(updates <-chan FeedSnapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(feedMessage{Action: "snapshot", Feed: &snap})
			if err != nil {
				log.Printf("FeedClient: failed to marshal snapshot: %v", err)
				continue
			}
			if !c.write(data) {
				return
			}

		case data := <-c.notices:
			if !c.write(data) {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *FeedClient) write(data []byte) bool {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data) == nil
}
