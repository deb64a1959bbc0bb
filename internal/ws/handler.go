package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/code"
	"github.com/typeracehq/race-server/internal/hub"
	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/protocol"
	"github.com/typeracehq/race-server/internal/race"
	"github.com/typeracehq/race-server/internal/room"
)

const outboxSize = 16

const writeTimeout = 3 * time.Second

// joinDeadline bounds how long a fresh connection may sit silent before its
// first join frame.
const joinDeadline = 10 * time.Second

// Handler upgrades the connection and runs the read loop. The first frame
// must be a join envelope naming (room code, user id, display name); after a
// successful join every further frame is decoded, validated and dispatched
// to the room's inbox.
func Handler(h *hub.Hub, maxWPM float64, m *metrics.Metrics, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx := r.Context()
		connLog := log.With(zap.String("conn", uuid.NewString()))

		joinMsg, err := readJoin(ctx, conn, maxWPM)
		if err != nil {
			writeFrame(ctx, conn, protocol.Error("validation_error", err.Error()))
			return
		}
		if !code.IsWellFormed(joinMsg.Code) {
			writeFrame(ctx, conn, protocol.Error("validation_error", "malformed room code"))
			return
		}

		rm := lookupRoom(h, joinMsg.Code)
		if rm == nil {
			writeFrame(ctx, conn, protocol.Error("not_found", hub.ErrRoomNotFound.Error()))
			return
		}

		outbox := make(chan []byte, outboxSize)
		player := race.Player{
			ID:          joinMsg.UserID,
			DisplayName: joinMsg.DisplayName,
			JoinedAtMs:  time.Now().UnixMilli(),
		}

		// The room can tear down at any point (abandoned, swept), after
		// which nothing drains its inbox. Every send and reply wait below
		// selects on Done so this handler can never wedge on a dead room.
		reply := make(chan error, 1)
		select {
		case rm.Inbox() <- room.Join{Player: player, Outbox: outbox, Reply: reply}:
		case <-rm.Done():
			writeFrame(ctx, conn, protocol.Error("not_found", hub.ErrRoomNotFound.Error()))
			return
		}
		select {
		case err := <-reply:
			if err != nil {
				writeFrame(ctx, conn, protocol.Error(protocol.ErrorCode(err), err.Error()))
				return
			}
		case <-rm.Done():
			writeFrame(ctx, conn, protocol.Error("not_found", hub.ErrRoomNotFound.Error()))
			return
		}
		if m != nil {
			m.ConnectedPlayers.Inc()
			defer m.ConnectedPlayers.Dec()
		}
		defer func() {
			select {
			case rm.Inbox() <- room.Disconnect{PlayerID: player.ID}:
			case <-rm.Done():
			}
		}()

		connLog.Info("connection joined",
			zap.String("room", joinMsg.Code),
			zap.String("player", player.ID))

		// Writer: drains the outbox the room broadcasts into. Closed outbox
		// means the room dropped us or tore down.
		writeCtx, writeCancel := context.WithCancel(ctx)
		defer writeCancel()
		go func() {
			for frame := range outbox {
				wctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(wctx, websocket.MessageText, frame)
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "room closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return // deferred Disconnect covers both clean and dirty exits
			}

			msg, err := protocol.DecodeClient(data, maxWPM)
			if err != nil {
				writeFrame(ctx, conn, protocol.Error("validation_error", err.Error()))
				continue
			}

			switch msg.Type {
			case protocol.MsgLeave:
				select {
				case rm.Inbox() <- room.Leave{PlayerID: player.ID}:
				case <-rm.Done():
				}
				return

			case protocol.MsgStart:
				if !dispatch(ctx, conn, rm, room.Start{RequesterID: player.ID, Snippet: msg.Start.Snippet, Reply: reply}, reply) {
					return
				}

			case protocol.MsgProgress:
				if !dispatch(ctx, conn, rm, room.Progress{
					PlayerID: player.ID,
					Progress: msg.Progress.Progress,
					WPM:      msg.Progress.WPM,
					Reply:    reply,
				}, reply) {
					return
				}

			case protocol.MsgFinish:
				if !dispatch(ctx, conn, rm, room.Finish{
					PlayerID: player.ID,
					Result: race.Result{
						WPM:        msg.Finish.WPM,
						Accuracy:   msg.Finish.Accuracy,
						Characters: msg.Finish.Characters,
						Errors:     msg.Finish.Errors,
					},
					Reply: reply,
				}, reply) {
					return
				}

			case protocol.MsgJoin:
				writeFrame(ctx, conn, protocol.Error("state_conflict", "already joined"))
			}
		}
	}
}

func readJoin(ctx context.Context, conn *websocket.Conn, maxWPM float64) (protocol.JoinData, error) {
	rctx, cancel := context.WithTimeout(ctx, joinDeadline)
	defer cancel()
	_, data, err := conn.Read(rctx)
	if err != nil {
		return protocol.JoinData{}, errors.New("expected a join message")
	}
	msg, err := protocol.DecodeClient(data, maxWPM)
	if err != nil {
		return protocol.JoinData{}, err
	}
	if msg.Type != protocol.MsgJoin {
		return protocol.JoinData{}, errors.New("first message must be join")
	}
	return msg.Join, nil
}

// dispatch hands one action to the room and reports any rejection to the
// sender. Returns false when the room shut down before answering.
func dispatch(ctx context.Context, conn *websocket.Conn, rm *room.Room, msg room.Msg, reply chan error) bool {
	select {
	case rm.Inbox() <- msg:
	case <-rm.Done():
		return false
	}
	select {
	case err := <-reply:
		replyError(ctx, conn, err)
		return true
	case <-rm.Done():
		return false
	}
}

func lookupRoom(h *hub.Hub, roomCode string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.GetRoom{Code: roomCode, Reply: reply}
	return <-reply
}

// replyError reports a rejected action to the sender only; the race goes on
// for everyone else.
func replyError(ctx context.Context, conn *websocket.Conn, err error) {
	if err == nil {
		return
	}
	writeFrame(ctx, conn, protocol.Error(protocol.ErrorCode(err), err.Error()))
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame []byte) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, frame)
}
