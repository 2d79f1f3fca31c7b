package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatclient/graphql"
	"chatclient/middlewares"
	"chatclient/models"
	"chatclient/store"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{graphql.Subprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

const initTimeout = 10 * time.Second

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg graphql.WSMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (w *wsConn) close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// HandleSubscriptions speaks graphql-transport-ws. The bearer token travels
// in the connection_init payload.
func (cc *ChatController) HandleSubscriptions(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cc.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	user, ok := cc.awaitInit(ws)
	if !ok {
		return
	}
	if err := ws.send(graphql.WSMessage{Type: graphql.MsgConnectionAck}); err != nil {
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	active := make(map[string]context.CancelFunc)
	for {
		var msg graphql.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case graphql.MsgPing:
			_ = ws.send(graphql.WSMessage{Type: graphql.MsgPong})
		case graphql.MsgSubscribe:
			if _, dup := active[msg.ID]; dup {
				ws.close(4409, "Subscriber for "+msg.ID+" already exists")
				return
			}
			var req graphql.Request
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				ws.close(graphql.CloseBadRequest, "invalid subscribe payload")
				return
			}
			subCtx, subCancel := context.WithCancel(ctx)
			active[msg.ID] = subCancel
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				cc.serve(subCtx, ws, id, user, req)
			}(msg.ID)
		case graphql.MsgComplete:
			if stop, ok := active[msg.ID]; ok {
				stop()
				delete(active, msg.ID)
			}
		}
	}
}

func (cc *ChatController) awaitInit(ws *wsConn) (models.User, bool) {
	_ = ws.conn.SetReadDeadline(time.Now().Add(initTimeout))
	defer ws.conn.SetReadDeadline(time.Time{})

	var msg graphql.WSMessage
	if err := ws.conn.ReadJSON(&msg); err != nil || msg.Type != graphql.MsgConnectionInit {
		ws.close(graphql.CloseBadRequest, "expected connection_init")
		return models.User{}, false
	}
	var payload graphql.InitPayload
	_ = json.Unmarshal(msg.Payload, &payload)

	user, ok := cc.Accounts.Verify(middlewares.BearerToken(payload.Headers["Authorization"]))
	if !ok {
		ws.close(graphql.CloseUnauthorized, "Unauthorized")
		return models.User{}, false
	}
	if role := payload.Headers[graphql.RoleHeader]; role != "" && role != cc.Role {
		ws.close(graphql.CloseForbidden, "Forbidden")
		return models.User{}, false
	}
	return user, true
}

// serve pushes the full result for one subscription now and after every change.
func (cc *ChatController) serve(ctx context.Context, ws *wsConn, id string, user models.User, req graphql.Request) {
	var (
		topic string
		read  func() (gin.H, error)
	)
	switch req.OperationName {
	case graphql.OpMessagesSubscription:
		chatID := req.StringVar("chatId")
		topic = store.ChatTopic(chatID)
		read = func() (gin.H, error) {
			msgs, err := cc.messages(ctx, user.ID, chatID)
			return gin.H{"messages": msgs}, err
		}
	case graphql.OpChatsSubscription:
		topic = store.ChatsTopic(user.ID)
		read = func() (gin.H, error) {
			rows, err := cc.chatRows(ctx, user.ID)
			return gin.H{"chats": rows}, err
		}
	default:
		cc.sendError(ws, id, fmt.Errorf("unknown subscription %q", req.OperationName))
		return
	}

	changes := cc.Store.Hub.Watch(ctx, topic)
	for {
		data, err := read()
		if err != nil {
			cc.sendError(ws, id, err)
			return
		}
		payload, _ := json.Marshal(gin.H{"data": data})
		if err := ws.send(graphql.WSMessage{ID: id, Type: graphql.MsgNext, Payload: payload}); err != nil {
			return
		}
		if _, ok := <-changes; !ok {
			return
		}
	}
}

func (cc *ChatController) sendError(ws *wsConn, id string, err error) {
	payload, _ := json.Marshal([]graphql.ErrorEntry{{Message: err.Error()}})
	_ = ws.send(graphql.WSMessage{ID: id, Type: graphql.MsgError, Payload: payload})
}
