package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/dilshat/bulk-sender/event"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Events godoc
// @Summary Event stream
// @Description Websocket streaming session and campaign events as json. Optional comma separated "kinds" query narrows the stream.
// @Param kinds query string false "Event kinds"
// @Router /ws [get]
func GetEventsFunc(publisher event.Publisher, allowedOrigin string) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}

	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			//the upgrader already answered
			zap.L().Warn("Websocket upgrade failed", zap.Error(err))
			return nil
		}
		defer ws.Close()

		events := publisher.Subscribe(parseKinds(c.QueryParam("kinds"))...)
		defer publisher.Unsubscribe(events)

		//reads are only needed to notice the client going away
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case e, ok := <-events:
				if !ok {
					_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
					return nil
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteJSON(e); err != nil {
					zap.L().Debug("Websocket write failed", zap.Error(err))
					return nil
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return nil
				}
			case <-closed:
				return nil
			}
		}
	}
}

func parseKinds(query string) []event.Kind {
	if strings.TrimSpace(query) == "" {
		return event.AllKinds
	}
	var kinds []event.Kind
	for _, k := range strings.Split(query, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, event.Kind(k))
		}
	}
	return kinds
}
