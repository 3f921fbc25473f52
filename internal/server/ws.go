package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/pkg/form"
)

// changeBuffer is how many change notifications may queue up for a slow
// client before new ones are dropped.
const changeBuffer = 32

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string          `json:"type"` // "set", "add_row", "remove_row", "submit", "ping"
	ID   string          `json:"id"`   // client-assigned request id
	Data json.RawMessage `json:"data,omitempty"`
}

// SetData is the payload of "set".
type SetData struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// RowData is the payload of "add_row" and "remove_row".
type RowData struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type      string `json:"type"` // "session", "changed", "result", "submitted", "error", "pong"
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ChangedData is pushed after every change to the form, whoever made it.
type ChangedData struct {
	Paths  []string       `json:"paths,omitempty"`
	Reload bool           `json:"reload,omitempty"`
	Status form.Status    `json:"status"`
	Values map[string]any `json:"values"`
}

// ResultData answers a successful request.
type ResultData struct {
	Index *int `json:"index,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// serveWS upgrades to a WebSocket bound to one session and runs the
// message loop.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := s.log.WithField("session", sess.ID)

	changes := make(chan form.Change, changeBuffer)
	stop := sess.Form.Watch(func(c form.Change) {
		select {
		case changes <- c:
		default:
			log.Warn("websocket client is behind, dropping change")
		}
	})
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-changes:
				s.send(ctx, conn, log, ServerMessage{Type: "changed", Data: changed(sess.Form, c)})
			}
		}
	}()

	s.send(ctx, conn, log, ServerMessage{Type: "session", Data: view(sess, true)})

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				log.WithField("status", status).Info("websocket closed")
			}
			return
		}
		sess.Touch()
		s.handle(ctx, conn, log, sess, msg)
	}
}

func (s *Server) handle(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, sess *Session, msg ClientMessage) {
	reply := func(data any, err error) {
		if err != nil {
			s.sendError(ctx, conn, log, msg.ID, err)
			return
		}
		s.send(ctx, conn, log, ServerMessage{Type: "result", RequestID: msg.ID, Data: data})
	}

	switch msg.Type {
	case "set":
		var d SetData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.sendErrorCode(ctx, conn, log, msg.ID, "invalid_data", "invalid set data")
			return
		}
		reply(ResultData{}, sess.Form.SetValue(d.Path, d.Value))
	case "add_row":
		var d RowData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.sendErrorCode(ctx, conn, log, msg.ID, "invalid_data", "invalid add_row data")
			return
		}
		idx, err := sess.Form.AddRow(d.Path)
		reply(ResultData{Index: &idx}, err)
	case "remove_row":
		var d RowData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.sendErrorCode(ctx, conn, log, msg.ID, "invalid_data", "invalid remove_row data")
			return
		}
		reply(ResultData{}, sess.Form.RemoveRow(d.Path, d.Index))
	case "submit":
		if s.cfg.Submissions == nil {
			s.sendErrorCode(ctx, conn, log, msg.ID, "no_store", "submissions are not configured")
			return
		}
		sub, err := sess.Form.Submit(ctx, s.cfg.Submissions)
		if err != nil {
			s.sendError(ctx, conn, log, msg.ID, err)
			return
		}
		s.send(ctx, conn, log, ServerMessage{Type: "submitted", RequestID: msg.ID, Data: sub})
	case "ping":
		s.send(ctx, conn, log, ServerMessage{Type: "pong", RequestID: msg.ID})
	default:
		s.sendErrorCode(ctx, conn, log, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func changed(f *form.Form, c form.Change) ChangedData {
	return ChangedData{
		Paths:  c.Paths,
		Reload: c.Reload,
		Status: f.Status(),
		Values: f.Value(),
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.WithError(err).Debug("websocket write")
	}
}

func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, requestID string, err error) {
	_, code := errorStatus(err)
	data := ErrorData{Code: code, Message: err.Error()}
	var ve form.ValidationErrors
	if errors.As(err, &ve) {
		data.Details = ve
	}
	s.send(ctx, conn, log, ServerMessage{Type: "error", RequestID: requestID, Data: data})
}

func (s *Server) sendErrorCode(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, requestID, code, message string) {
	s.send(ctx, conn, log, ServerMessage{Type: "error", RequestID: requestID, Data: ErrorData{Code: code, Message: message}})
}
