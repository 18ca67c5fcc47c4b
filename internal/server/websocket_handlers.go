package server

import (
	"context"
	"errors"
	"log/slog"

	"studyhub/internal/middleware"
	"studyhub/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// socketUserID reads the user id AuthRequired stored before the upgrade.
func socketUserID(conn *websocket.Conn) (uint, bool) {
	userID, ok := conn.Locals(localUserID).(uint)
	if !ok {
		middleware.Logger.Warn("websocket: unauthenticated connection attempt")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
		_ = conn.Close()
	}
	return userID, ok
}

func rejectSocket(conn *websocket.Conn, hub string, userID uint, err error) {
	middleware.Logger.Warn("websocket: registration refused",
		slog.String("hub", hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("error", err.Error()),
	)
	_ = conn.WriteJSON(fiber.Map{"error": err.Error()})
	_ = conn.Close()
}

// WebsocketHandler handles GET /api/ws, the per-user notification socket.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := socketUserID(conn)
		if !ok {
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			rejectSocket(conn, s.hub.Name(), userID, err)
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// WebSocketStudyHandler handles GET /api/ws/study, the study room signaling socket.
func (s *Server) WebSocketStudyHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := socketUserID(conn)
		if !ok {
			return
		}

		user, err := s.users.GetUserByID(context.Background(), userID)
		if err != nil {
			rejectSocket(conn, s.studyHub.Name(), userID, err)
			return
		}

		client, err := s.studyHub.Register(userID, user.Username, conn)
		if err != nil {
			rejectSocket(conn, s.studyHub.Name(), userID, err)
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// PeerBrokerHandler handles GET /api/peer, a PeerJS-compatible signaling socket.
func (s *Server) PeerBrokerHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := socketUserID(conn)
		if !ok {
			return
		}

		client, err := s.peers.Register(context.Background(), userID, conn.Query("id"), conn)
		if err != nil {
			if errors.Is(err, notifications.ErrPeerIDTaken) {
				_ = conn.WriteMessage(websocket.TextMessage, notifications.IDTakenFrame())
				_ = conn.Close()
				return
			}
			rejectSocket(conn, s.peers.Name(), userID, err)
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
