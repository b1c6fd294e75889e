// Package ws exposes a chat session over a WebSocket. Each connection owns
// exactly one session; the transcript is dropped when the socket closes.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	charservice "characterchat/backend/character/service"
	"characterchat/backend/conversation/service"
	apperrors "characterchat/backend/pkg/errors"
	"characterchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
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
	maxMessageSize = 512 * 1024
)

// Frame types.
const (
	TypeSend       = "send"
	TypeRegenerate = "regenerate"
	TypeCancel     = "cancel"
	TypeClear      = "clear"
	TypePing       = "ping"

	TypePong   = "pong"
	TypeState  = "state"
	TypeResult = "result"
	TypeError  = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// ResultPayload is the content of a "result" frame.
type ResultPayload struct {
	Command string         `json:"command"`
	Status  service.Status `json:"status"`
	Content string         `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ErrorPayload is the content of an "error" frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Handler upgrades chat requests and serves one session per connection.
type Handler struct {
	chat *service.ChatService
	log  *logger.Logger
}

func NewHandler(chat *service.ChatService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Handler{chat: chat, log: log.WithComponent("ws")}
}

// ServeWs handles GET /characters/:id/chat. The session is opened before
// the upgrade so missing characters and keys surface as plain HTTP errors.
func (h *Handler) ServeWs(c *gin.Context) {
	characterID := c.Param("id")

	session, err := h.chat.OpenSession(c.Request.Context(), characterID)
	switch {
	case errors.Is(err, service.ErrNoCredential):
		c.Error(apperrors.NewPreconditionFailedError("API_KEY_REQUIRED", "An API key is required before chatting"))
		return
	case charservice.IsNotFound(err):
		c.Error(apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", "Character not found"))
		return
	case err != nil:
		c.Error(apperrors.FromError(err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "Error upgrading connection", "character_id", characterID)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	client := &Client{
		conn:    conn,
		session: session,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.FromGin(c).WithComponent("ws").With("character_id", characterID),
	}

	client.log.Info("Chat connection established")
	client.wg.Add(1)
	go client.WritePump()

	// Block until the peer goes away so the request context stays valid
	// for the lifetime of the connection.
	client.ReadPump()
	client.log.Info("Chat connection closed")
}

// Client is the middleman between one websocket connection and its session.
type Client struct {
	conn    *websocket.Conn
	session *service.Session
	log     *logger.Logger

	// send is never closed; writers select on done instead.
	send chan []byte
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ReadPump pumps commands from the websocket connection to the session.
// It owns teardown: when it returns the session is cleared and every
// goroutine started for this connection has exited.
func (c *Client) ReadPump() {
	unsubscribe := c.session.OnChange(func(snap service.Snapshot) {
		c.enqueue(Message{Type: TypeState, Content: snap})
	})

	defer func() {
		unsubscribe()
		close(c.done)
		c.cancel()
		c.session.Clear()
		c.wg.Wait()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.enqueue(Message{Type: TypeState, Content: c.session.Snapshot()})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.LogError(err, "Unexpected websocket close")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case TypeSend:
		text, _ := msg.Content.(string)
		c.spawn(func() {
			c.sendResult(TypeSend, c.session.Send(c.ctx, text))
		})
	case TypeRegenerate:
		c.spawn(func() {
			c.sendResult(TypeRegenerate, c.session.Regenerate(c.ctx))
		})
	case TypeCancel:
		c.session.Cancel()
	case TypeClear:
		c.session.Clear()
	case TypePing:
		c.enqueue(Message{Type: TypePong})
	default:
		c.sendError(fmt.Sprintf("unknown message type: %q", msg.Type))
	}
}

// spawn runs a blocking session call without stalling the read loop, so a
// cancel frame can arrive while a reply streams.
func (c *Client) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Client) sendResult(command string, res service.Result) {
	if res.Status == service.StatusFailed {
		c.log.Warn("Reply failed", "command", command, "error", res.Reason())
	}
	c.enqueue(Message{Type: TypeResult, Content: ResultPayload{
		Command: command,
		Status:  res.Status,
		Content: res.Content,
		Error:   res.Reason(),
	}})
}

func (c *Client) sendError(text string) {
	c.enqueue(Message{Type: TypeError, Content: ErrorPayload{Message: text}})
}

// enqueue hands a frame to the write pump. It drops the frame once the
// connection is shutting down.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.LogError(err, "Error marshaling message", "type", msg.Type)
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	case <-c.done:
	}
}

// WritePump pumps frames from the send queue to the websocket connection.
// It is the only goroutine that writes to conn.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
