package hub

import (
	"context"
	"errors"

	"newstech/pkg/apierr"
	"newstech/pkg/chat"
	"newstech/pkg/envelope"
	"newstech/pkg/listing"
	"newstech/pkg/models"

	"go.uber.org/zap"
)

const (
	ActionSearch  = "posts.search"
	ActionSort    = "posts.sort"
	ActionPage    = "posts.page"
	ActionRefresh = "posts.refresh"
	ActionDelete  = "posts.delete"
	ActionRender  = "posts.render"
	ActionError   = "posts.error"
	ActionChat    = "chat.send"
	ActionReply   = "chat.reply"
	ActionChatErr = "chat.error"
)

// RenderPayload is what posts.render carries: the list fragment and the
// shareable query string of the state it shows.
type RenderPayload struct {
	HTML  string `json:"html"`
	Query string `json:"query"`
}

type searchPayload struct {
	Q string `json:"q"`
}

type sortPayload struct {
	Ordem string `json:"ordem"`
}

type pagePayload struct {
	Page int `json:"page"`
}

type deletePayload struct {
	ID        int  `json:"id"`
	Confirmed bool `json:"confirmed"`
}

type chatPayload struct {
	Message string `json:"message"`
}

const deleteFailedMessage = "Erro ao excluir a postagem."

func (h *Hub) registerDefaults() {
	h.On(ActionSearch, func(c *Conn, env envelope.Envelope) {
		p, err := envelope.ParseData[searchPayload](env)
		if err != nil {
			c.sendEnvelope(envelope.NewError(env, ActionError, 400, "payload inválido"))
			return
		}
		c.ctrl.Search(p.Q)
	})

	h.On(ActionSort, func(c *Conn, env envelope.Envelope) {
		p, err := envelope.ParseData[sortPayload](env)
		if err != nil {
			c.sendEnvelope(envelope.NewError(env, ActionError, 400, "payload inválido"))
			return
		}
		c.ctrl.SetSort(models.ParseSortOrder(p.Ordem))
	})

	h.On(ActionPage, func(c *Conn, env envelope.Envelope) {
		p, err := envelope.ParseData[pagePayload](env)
		if err != nil {
			c.sendEnvelope(envelope.NewError(env, ActionError, 400, "payload inválido"))
			return
		}
		c.ctrl.GoTo(p.Page)
	})

	h.On(ActionRefresh, func(c *Conn, env envelope.Envelope) {
		c.ctrl.Refresh()
	})

	// The page script asks the user before sending; an unconfirmed delete
	// is dropped without a network call.
	h.On(ActionDelete, func(c *Conn, env envelope.Envelope) {
		p, err := envelope.ParseData[deletePayload](env)
		if err != nil || p.ID < 1 {
			c.sendEnvelope(envelope.NewError(env, ActionError, 400, "payload inválido"))
			return
		}
		confirm := listing.ConfirmFunc(func(context.Context, int) (bool, error) { return p.Confirmed, nil })
		if _, err := c.ctrl.Delete(c.ctx, p.ID, confirm); err != nil {
			c.sendEnvelope(envelope.NewError(env, ActionError, apierr.Status(err), apierr.UserMessage(err, deleteFailedMessage)))
		}
	})

	h.On(ActionChat, func(c *Conn, env envelope.Envelope) {
		if c.chat == nil {
			c.sendEnvelope(envelope.NewError(env, ActionChatErr, 503, chat.NoReplyMessage))
			return
		}
		p, err := envelope.ParseData[chatPayload](env)
		if err != nil {
			c.sendEnvelope(envelope.NewError(env, ActionChatErr, 400, "payload inválido"))
			return
		}
		go func() {
			reply, err := c.chat.Send(c.ctx, p.Message)
			switch {
			case errors.Is(err, chat.ErrSuperseded), c.ctx.Err() != nil:
				return
			case errors.Is(err, chat.ErrEmpty):
				c.sendEnvelope(envelope.NewError(env, ActionChatErr, 400, "Mensagem vazia."))
			case err != nil:
				c.log.Warn("chat failed", zap.Error(err))
				c.sendEnvelope(envelope.NewError(env, ActionChatErr, apierr.Status(err), chat.ErrorLine(err)))
			default:
				r, _ := envelope.NewReply(env, ActionReply, map[string]string{"reply": reply})
				c.sendEnvelope(r)
			}
		}()
	})
}
