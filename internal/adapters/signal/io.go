package signal

import (
	"fmt"
	"time"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			log.Info().Str("module", "signal").Msg("writePump done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			ping, _ := encode(envelope{Type: typePing})
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		_ = c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case typeJoined:
		c.resolveJoin(env.ID, joinResult{participant: env.Participant})
	case typeError:
		if env.ID != "" {
			c.resolveJoin(env.ID, joinResult{err: joinError(env)})
			return
		}
		log.Warn().Str("module", "signal").Str("error", env.Error).Msg("gateway error")
	case typeMessage:
		if env.Message == nil {
			log.Warn().Str("module", "signal").Msg("message envelope without body")
			return
		}
		msg := env.Message
		if msg.Conference == "" {
			msg.Conference = env.Conference
		}
		c.dispatch(msg)
	case typePong:
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *Client) dispatch(msg *domain.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}
	if err := h.Dispatch(msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("id", msg.ID).Msg("dispatch")
	}
}

func joinError(env envelope) error {
	if env.Error == "" {
		return ErrJoinRejected
	}
	return fmt.Errorf("%w: %s: %s", ErrJoinRejected, env.Conference, env.Error)
}
