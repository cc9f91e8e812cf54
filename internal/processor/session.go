package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// SessionProcessor submits register sessions.
type SessionProcessor struct {
	store  Store
	remote remote.Writer
	log    zerolog.Logger
}

// NewSessionProcessor creates a SessionProcessor.
func NewSessionProcessor(st Store, w remote.Writer, log zerolog.Logger) *SessionProcessor {
	return &SessionProcessor{store: st, remote: w, log: log.With().Str("processor", "session").Logger()}
}

// Entity implements Processor.
func (p *SessionProcessor) Entity() model.EntityType { return model.EntitySession }

// Process implements Processor.
func (p *SessionProcessor) Process(ctx context.Context, item *model.QueueItem, ids *IdentifierMap) Result {
	sess, err := p.store.GetSession(ctx, item.EntityID)
	if err != nil {
		return failed(loadErr("session", item.EntityID, err))
	}

	switch item.Action {
	case model.ActionCreate:
		return p.create(ctx, sess, ids)
	case model.ActionUpdate:
		return p.update(ctx, sess)
	}
	return unknownAction(item)
}

func (p *SessionProcessor) create(ctx context.Context, sess *model.Session, ids *IdentifierMap) Result {
	if sess.ServerID != "" {
		ids.Put(model.EntitySession, sess.ID, sess.ServerID)
		return succeeded(sess.ServerID)
	}

	serverID, err := p.remote.InsertSession(ctx, sessionRecord(sess))
	if err != nil {
		return failed(NewRemoteError("insert session", sess.ID, err))
	}
	ids.Put(model.EntitySession, sess.ID, serverID)

	if err := p.store.MarkSessionSynced(ctx, sess.ID, serverID); err != nil {
		p.log.Error().Err(err).Str("session_id", sess.ID).Str("server_id", serverID).
			Msg("session inserted remotely but not marked synced")
		return failed(err)
	}
	p.log.Debug().Str("session_id", sess.ID).Str("server_id", serverID).Msg("session synced")
	return succeeded(serverID)
}

func (p *SessionProcessor) update(ctx context.Context, sess *model.Session) Result {
	if sess.ServerID == "" {
		return failed(NewUnresolvedError("session", sess.ID))
	}
	if err := p.remote.UpdateSession(ctx, sess.ServerID, sessionRecord(sess)); err != nil {
		return failed(NewRemoteError("update session", sess.ID, err))
	}
	return succeeded(sess.ServerID)
}

func sessionRecord(s *model.Session) remote.SessionRecord {
	return remote.SessionRecord{
		LocalID:        s.ID,
		RegisterID:     s.RegisterID,
		CashierID:      s.CashierID,
		OpeningBalance: s.OpeningBalance,
		ClosingBalance: s.ClosingBalance,
		OpenedAt:       s.OpenedAt,
		ClosedAt:       s.ClosedAt,
	}
}
