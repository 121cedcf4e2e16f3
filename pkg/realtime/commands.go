package realtime

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/protocol"
)

// send writes one command frame. It never waits for a reply.
func (c *Conn) send(command string, payload any) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || ws == nil {
		return apierr.New(apierr.KindNotConnected, nil)
	}

	b, err := protocol.Encode(command, payload)
	if err != nil {
		return apierr.New(apierr.KindValidation, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.log.Warn("write failed", zap.String("command", command), zap.Error(err))
		return apierr.FromTransport(err)
	}
	metrics.CommandsSent.WithLabelValues(command).Inc()
	return nil
}

// SendMessage emits a chat message over the live connection. The server's
// echo, if any, arrives later through OnMessage.
func (c *Conn) SendMessage(route model.Route, content string) error {
	if !c.IsConnected() {
		return apierr.New(apierr.KindNotConnected, nil)
	}
	if strings.TrimSpace(content) == "" {
		return apierr.Validation(apierr.CodeContentEmpty)
	}
	return c.send(protocol.CmdSendMessage, protocol.NewSendMessage(route, content))
}

func (c *Conn) SendDirectMessage(recipientID, content string) error {
	return c.SendMessage(model.Direct(recipientID), content)
}

func (c *Conn) SendProjectMessage(projectID, content string) error {
	return c.SendMessage(model.Project(projectID), content)
}

// JoinProjectRoom subscribes this session to a project's room. Confirmation
// comes back through OnJoinedProject.
func (c *Conn) JoinProjectRoom(projectID string) error {
	return c.send(protocol.CmdJoinProject, protocol.JoinProject{ProjectID: projectID})
}

// StartTyping and StopTyping are best effort: failures are logged, never
// returned.
func (c *Conn) StartTyping(route model.Route) { c.typing(route, true) }

func (c *Conn) StopTyping(route model.Route) { c.typing(route, false) }

func (c *Conn) typing(route model.Route, typing bool) {
	if !c.IsConnected() {
		return
	}
	if err := c.send(protocol.CmdTyping, protocol.NewTyping(route, typing)); err != nil {
		c.log.Debug("typing indicator not sent", zap.Stringer("route", route), zap.Error(err))
	}
}

// RequestOnlineUsers asks for the online user list; the answer arrives
// through OnOnlineUsers.
func (c *Conn) RequestOnlineUsers() error {
	return c.send(protocol.CmdGetOnlineUsers, nil)
}
