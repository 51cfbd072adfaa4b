package v1

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/service/chat"
)

// wsConn adapts one WebSocket to the hub's Conn. Hub broadcasts and the
// command loop's direct replies share the socket, hence the write lock.
// Until the snapshot has been sent, events are parked so nothing broadcast
// between hub registration and the snapshot read is lost.
type wsConn struct {
	mu   sync.Mutex
	send func(*chat.Event) error

	buffering bool
	buffered  []*chat.Event
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		send:      func(event *chat.Event) error { return websocket.JSON.Send(ws, event) },
		buffering: true,
	}
}

func (c *wsConn) Send(event *chat.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffering {
		c.buffered = append(c.buffered, event)
		return nil
	}
	return c.send(event)
}

// open sends the snapshot, then flushes parked events, dropping messages the
// snapshot already contains.
func (c *wsConn) open(uid string, snapshot *chat.SnapshotPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffering = false
	if err := c.send(chat.NewSnapshotEvent(uid, snapshot)); err != nil {
		return err
	}
	var maxSeq int64
	for _, m := range snapshot.Messages {
		if m.Sequence > maxSeq {
			maxSeq = m.Sequence
		}
	}
	for _, event := range c.buffered {
		if event.Message != nil && event.Message.Sequence <= maxSeq {
			continue
		}
		if err := c.send(event); err != nil {
			return err
		}
	}
	c.buffered = nil
	return nil
}

// LiveConversation upgrades to a WebSocket, attaches the connection to the
// delivery hub, sends the snapshot, and then serves inbound commands until
// the client goes away. The connection is registered before the snapshot is
// read; events broadcast in between are parked and flushed after it, so a
// connecting client never observes a gap.
func (s *APIV1Service) LiveConversation(c echo.Context) error {
	uid := c.Param("uid")
	// Resolve before upgrading so unknown conversations get a proper HTTP
	// status instead of an aborted handshake.
	if _, err := s.Scheduler.Snapshot(c.Request().Context(), uid); err != nil {
		return httpError(err)
	}

	websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()
		conn := newWSConn(ws)
		s.Hub.Register(uid, conn)
		defer s.Hub.Unregister(uid, conn)

		ctx := c.Request().Context()
		snapshot, err := s.Scheduler.Snapshot(ctx, uid)
		if err != nil {
			return
		}
		if err := conn.open(uid, snapshot); err != nil {
			return
		}

		for {
			var cmd chat.ClientCommand
			if err := websocket.JSON.Receive(ws, &cmd); err != nil {
				return
			}
			s.dispatchCommand(ctx, uid, &cmd, conn)
		}
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}

// dispatchCommand runs one inbound command. Failures go back to the issuing
// connection only; the conversation-wide stream is unaffected.
func (s *APIV1Service) dispatchCommand(ctx context.Context, uid string, cmd *chat.ClientCommand, conn *wsConn) {
	var err error
	switch cmd.Type {
	case chat.CommandSendMessage:
		if cmd.Content == "" {
			s.replyError(conn, uid, "empty message content")
			return
		}
		_, err = s.Scheduler.SubmitUserMessage(ctx, uid, "You", cmd.Content)
	case chat.CommandPause:
		err = s.Scheduler.Pause(ctx, uid)
	case chat.CommandResume:
		err = s.Scheduler.Resume(ctx, uid)
	default:
		s.replyError(conn, uid, "unknown command: "+cmd.Type)
		return
	}
	if err != nil {
		s.replyError(conn, uid, err.Error())
	}
}

func (s *APIV1Service) replyError(conn *wsConn, uid, message string) {
	_ = conn.Send(&chat.Event{
		Type:            chat.EventError,
		ConversationUID: uid,
		Error:           &chat.ErrorPayload{Kind: "request_rejected", Message: message},
	})
}
