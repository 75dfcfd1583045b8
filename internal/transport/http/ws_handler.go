package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"history-ranking-service/internal/app"
)

type WSHandler struct {
	service      *app.RankingService
	log          *zap.Logger
	defaultLimit int
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.RankingService, logger *zap.Logger, defaultLimit int) *WSHandler {
	return &WSHandler{
		service:      service,
		log:          logger,
		defaultLimit: defaultLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams a card's ranking: once on connect, then after every recorded pass.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query, err := rankingQuery(r, h.defaultLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if query.CardID == "" {
		http.Error(w, "missing cardId", http.StatusBadRequest)
		return
	}

	// Subscribing before the upgrade lets unknown cards fail as plain HTTP.
	updates, cancel, err := h.service.Subscribe(r.Context(), query.CardID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- h.ranking(ctx, query):
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	out := outbox{send: send, done: writerDone}
	if out.push(h.ranking(ctx, query)) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			var msg outboundMessage[any]
			switch inbound.Type {
			case "refresh":
				msg = h.ranking(ctx, query)
			default:
				msg = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			}
			if !out.push(msg) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// outbox queues messages for the connection writer.
type outbox struct {
	send chan<- outboundMessage[any]
	done <-chan struct{}
}

// push queues msg and reports false once the writer has stopped.
func (o outbox) push(msg outboundMessage[any]) bool {
	select {
	case o.send <- msg:
		return true
	case <-o.done:
		return false
	}
}

func (h *WSHandler) ranking(ctx context.Context, query app.RankingQuery) outboundMessage[any] {
	result, err := h.service.ComputeRanking(ctx, query)
	if err != nil {
		h.log.Warn("ws ranking failed", zap.String("card_id", string(query.CardID)), zap.Error(err))
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
	return outboundMessage[any]{Type: "ranking", Payload: result}
}
