package signal

import (
	"context"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleHeartbeat(sid core.SessionID) {
	ctl.Orch.Heartbeat(sid)
}

func (ctl *SignalWSController) handleIdentify(ctx context.Context, sid core.SessionID, msg *protocol.Message) {
	p, err := protocol.DecodeIdentify(msg.D)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad identify payload")
		return
	}
	if _, err := ctl.Orch.Identify(ctx, sid, p.Token); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("identify rejected")
	}
}

// handleEvent routes op 0 frames. Everything except typing and control input
// is ignored, as is anything from an anonymous connection.
func (ctl *SignalWSController) handleEvent(ctx context.Context, sid core.SessionID, msg *protocol.Message) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	uid, ok := sess.UserID()
	if !ok {
		return
	}

	switch {
	case msg.T == protocol.TypingUpdate:
		if !ctl.Typing.Allow(uid) {
			return
		}
		ctl.Orch.Typing(ctx, sid, protocol.DecodeTyping(msg.D).Typing)
	case protocol.IsControl(msg.T):
		ctl.Orch.ControlInput(ctx, sid, msg.T, msg.D)
	default:
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("type", string(msg.T)).Msg("unknown event")
	}
}
