package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"imggen/internal/docstore"
	"imggen/internal/imggen"
)

const (
	liveWSWriteWait = 10 * time.Second
	liveWSPongWait  = 60 * time.Second
	liveWSPingEvery = (liveWSPongWait * 9) / 10
)

var liveWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type liveWSInbound struct {
	Type string `json:"type"`
}

type liveWSOutbound struct {
	Type     string `json:"type"`
	Kind     string `json:"kind,omitempty"`
	ID       string `json:"id,omitempty"`
	Document any    `json:"document,omitempty"`
	Message  string `json:"message,omitempty"`
}

type LiveHandler struct {
	svc *imggen.Service
}

func NewLiveHandler(svc *imggen.Service) *LiveHandler {
	return &LiveHandler{svc: svc}
}

// HandleLiveWS streams document change events over a websocket. Clients
// subscribe with GET /api/live?type=image.
func (h *LiveHandler) HandleLiveWS(w http.ResponseWriter, r *http.Request) {
	docType := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := liveWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(liveWSPongWait)); err != nil {
		log.Printf("live ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveWSPongWait))
	})

	writeCh := make(chan liveWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(liveWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(liveWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(liveWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	changes, subErr := h.svc.Subscribe(ctx, docType)
	if subErr != nil {
		pushLiveWS(writeCh, liveWSOutbound{
			Type:    "error",
			Message: subErr.Error(),
		})
		cancel()
		<-writerDone
		return
	}

	pushLiveWS(writeCh, liveWSOutbound{
		Type: "subscribed",
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				out := liveWSOutbound{
					Type: "change",
					Kind: changeKind(change.Kind),
					ID:   change.ID,
				}
				if change.Doc != nil {
					out.Document = change.Doc
				}
				pushLiveWS(writeCh, out)
			}
		}
	}()

	for {
		var in liveWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		if strings.EqualFold(strings.TrimSpace(in.Type), "ping") {
			pushLiveWS(writeCh, liveWSOutbound{Type: "pong"})
		}
	}
}

func changeKind(kind docstore.ChangeKind) string {
	switch kind {
	case docstore.ChangeDelete:
		return "delete"
	default:
		return "put"
	}
}

// pushLiveWS never blocks the producer: when the buffer is full the
// oldest queued event is dropped in favor of the new one.
func pushLiveWS(writeCh chan liveWSOutbound, out liveWSOutbound) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
