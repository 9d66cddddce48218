package dydx

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/volbreak/volbreak/core"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadLimit        = 1 << 20

	// tickBuffer bounds the pending-trade queue. When the consumer
	// lags, the oldest pending trade is dropped: the open candle
	// degrades gracefully while closed candles stay authoritative
	// through snapshots.
	tickBuffer = 256
)

type wsSubscribe struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

type wsMessage struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	Contents struct {
		Trades []struct {
			Price     string    `json:"price"`
			Size      string    `json:"size"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"trades"`
	} `json:"contents"`
	Message string `json:"message"`
}

// SubscribeTrades opens one subscription to the v4_trades channel. The
// returned channels die together on the first error; reconnection is
// the caller's responsibility per the core.Feeder contract.
func (c *Client) SubscribeTrades(ctx context.Context, instrument string) (chan core.TradeTick, chan error) {
	ticks := make(chan core.TradeTick, tickBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		defer close(errs)

		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsReadLimit)

		// Unblock the read loop when the context dies.
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		sub := wsSubscribe{Type: "subscribe", Channel: "v4_trades", ID: instrument}
		if err := conn.WriteJSON(sub); err != nil {
			errs <- err
			return
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			c.dispatch(raw, ticks)
		}
	}()

	return ticks, errs
}

func (c *Client) dispatch(raw []byte, ticks chan core.TradeTick) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.WithError(err).Debug("unparseable stream message")
		return
	}

	switch msg.Type {
	case "subscribed", "connected":
		c.log.Debugf("stream %s", msg.Type)
		return
	case "error":
		c.log.Warnf("stream error message: %s", msg.Message)
		return
	}

	for _, trade := range msg.Contents.Trades {
		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil {
			c.log.WithError(err).Debug("dropped trade with bad price")
			continue
		}
		size, err := strconv.ParseFloat(trade.Size, 64)
		if err != nil {
			c.log.WithError(err).Debug("dropped trade with bad size")
			continue
		}

		tick := core.TradeTick{Price: price, Size: size, At: trade.CreatedAt.UTC()}
		select {
		case ticks <- tick:
		default:
			// Queue full: drop the oldest pending trade.
			select {
			case <-ticks:
			default:
			}
			select {
			case ticks <- tick:
			default:
			}
		}
	}
}
