package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/services/battle"
	"github.com/quizbattle/quizbattle-go/internal/services/room"
	"github.com/quizbattle/quizbattle-go/internal/services/session"
)

// Application close codes sent before dropping a connection the
// gateway will not serve.
const (
	CloseUnauthorized   = 4001
	CloseMaxConnections = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades websocket connections and routes their messages to
// the room and battle services.
type Handler struct {
	sessions *session.Service
	rooms    *room.Service
	battle   *battle.Coordinator
	hubs     *HubManager
	logger   *slog.Logger
}

// NewHandler creates a new websocket handler
func NewHandler(sessions *session.Service, rooms *room.Service, battleSvc *battle.Coordinator, hubs *HubManager, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		rooms:    rooms,
		battle:   battleSvc,
		hubs:     hubs,
		logger:   logger.With(slog.String("component", "ws")),
	}
}

// ServeHTTP handles GET /ws?token=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	token := r.URL.Query().Get("token")

	sess, err := h.sessions.Authenticate(ctx, token)
	if err != nil {
		h.closeWithCode(conn, CloseUnauthorized, "unauthorized")
		return
	}

	if err := h.sessions.TrackConnection(ctx, sess.UserID); err != nil {
		if errors.Is(err, model.ErrMaxConnections) {
			h.closeWithCode(conn, CloseMaxConnections, "connection limit reached")
		} else {
			h.closeWithCode(conn, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}

	h.logger.Info("client connected", slog.String("user_id", string(sess.UserID)))

	client := newClient(conn, sess.UserID, h, h.logger)
	client.run(context.Background())
}

// closeWithCode sends an application close frame and drops the
// connection.
func (h *Handler) closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// route dispatches one inbound message
func (h *Handler) route(ctx context.Context, c *Client, msg model.Message) {
	switch msg.Type {
	case model.MessageJoin:
		h.handleJoin(ctx, c, msg.Payload)

	case model.MessageReady:
		roomID := c.Room()
		if roomID == "" {
			h.sendError(c, "NOT_IN_ROOM", "join a room first")
			return
		}
		if err := h.battle.HandleReady(ctx, roomID, c.UserID); err != nil {
			h.sendError(c, "INTERNAL", "could not process ready")
		}

	case model.MessageAnswer:
		roomID := c.Room()
		if roomID == "" {
			h.sendError(c, "NOT_IN_ROOM", "join a room first")
			return
		}
		var payload model.AnswerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(c, "BAD_MESSAGE", "malformed answer")
			return
		}
		if err := h.battle.HandleAnswer(ctx, roomID, c.UserID, payload.SelectedOption); err != nil {
			h.sendError(c, "INTERNAL", "could not process answer")
		}

	case model.MessageLeave:
		roomID := c.Room()
		if roomID == "" {
			return
		}
		c.SetRoom("")
		h.hubs.Leave(roomID, c)
		if err := h.battle.HandleLeave(ctx, roomID, c.UserID); err != nil {
			h.logger.Warn("leave failed",
				slog.String("user_id", string(c.UserID)),
				slog.String("room_id", string(roomID)),
				slog.String("error", err.Error()))
		}

	default:
		h.sendError(c, "UNKNOWN_TYPE", "unknown message type")
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	if c.Room() != "" {
		h.sendError(c, "ALREADY_JOINED", "already in a room")
		return
	}

	var payload model.JoinPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.sendError(c, "BAD_MESSAGE", "malformed join")
			return
		}
	}

	// A user reconnecting after a dropped connection is still a member
	// of their room; reattach instead of rejecting the join.
	if existing, err := h.rooms.RoomForUser(ctx, c.UserID); err == nil && existing != "" {
		if payload.RoomID != "" && payload.RoomID != existing {
			h.sendError(c, "ALREADY_JOINED", "already in a room")
			return
		}
		count, err := h.rooms.MemberCount(ctx, existing)
		if err != nil {
			h.sendError(c, "INTERNAL", "could not rejoin room")
			return
		}
		h.attach(ctx, c, existing, count)
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		found, err := h.rooms.GetPublicRoom(ctx, c.UserID)
		if err != nil || found == "" {
			h.sendError(c, "NO_ROOM_AVAILABLE", "no public room available")
			return
		}
		roomID = found
	}

	count, err := h.rooms.JoinRoom(ctx, c.UserID, roomID, payload.InviteCode)
	if err != nil {
		h.sendError(c, joinErrorCode(err), "could not join room")
		return
	}

	h.attach(ctx, c, roomID, count)
}

// attach binds the client to the room's hub and sends the current
// game state.
func (h *Handler) attach(ctx context.Context, c *Client, roomID model.RoomID, count int) {
	c.SetRoom(roomID)
	h.hubs.Join(roomID, c)

	state := model.StatePayload{Phase: model.PhaseWaiting, PlayerCount: count}
	if snap, err := h.battle.Snapshot(ctx, roomID); err == nil && snap.Phase != "" {
		state.Phase = snap.Phase
		state.Round = snap.Round
	}
	c.Send(model.NewMessage(model.EventState, state))
}

// closed runs when a connection drops for any reason
func (h *Handler) closed(ctx context.Context, c *Client) {
	h.sessions.ReleaseConnection(ctx, c.UserID)

	roomID := c.Room()
	if roomID == "" {
		return
	}
	h.hubs.Leave(roomID, c)
	if err := h.battle.HandleDisconnect(ctx, roomID, c.UserID); err != nil {
		h.logger.Warn("disconnect cleanup failed",
			slog.String("user_id", string(c.UserID)),
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
	h.logger.Info("client disconnected", slog.String("user_id", string(c.UserID)))
}

func (h *Handler) sendError(c *Client, code, message string) {
	c.Send(model.NewMessage(model.EventError, model.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, model.ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, model.ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case errors.Is(err, model.ErrInvalidInviteCode):
		return "INVALID_INVITE_CODE"
	default:
		return "INTERNAL"
	}
}
