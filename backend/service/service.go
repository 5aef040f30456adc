package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/proctor-signaling/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyJoined = errors.New("peer already joined a session")
	ErrPeerClosed    = errors.New("peer is closed")
)

type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type (
	Switch interface {
		Join(sessionID string, ep model.Endpoint)
		Leave(sessionID string, ep model.Endpoint)
		Broadcast(ctx context.Context, sessionID string, sender model.Endpoint, payload []byte) int
	}

	Service struct {
		sw     Switch
		logger zerolog.Logger
	}

	Config struct {
		Switch Switch
		Logger *zerolog.Logger
	}

	// Peer is the relay side of one connection.
	// It commits to at most one session for its lifetime.
	Peer struct {
		svc    *Service
		ep     model.Endpoint
		logger zerolog.Logger

		mx        sync.Mutex
		state     State
		sessionID string
		closeOnce sync.Once
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		sw:     cfg.Switch,
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

// CreateSignalingSession starts tracking a freshly accepted connection.
// The connection does not belong to any room until it sends a join message.
func (svc *Service) CreateSignalingSession(ep model.Endpoint) *Peer {
	p := &Peer{
		svc:    svc,
		ep:     ep,
		logger: svc.logger.With().Str("connID", ep.ID()).Logger(),
		state:  StateUnjoined,
	}
	p.logger.Debug().Msg("signaling session created")
	return p
}

func (p *Peer) State() State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.state
}

func (p *Peer) SessionID() string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.sessionID
}

// HandleMessage processes one inbound message. Returned errors describe
// dropped messages; none of them make the peer unusable.
func (p *Peer) HandleMessage(ctx context.Context, msg []byte) error {
	env, err := model.ParseEnvelope(msg)
	if err != nil {
		return err
	}
	if env.IsJoin() {
		return p.join(env.SessionID)
	}

	p.mx.Lock()
	state, sessionID, logger := p.state, p.sessionID, p.logger
	p.mx.Unlock()

	switch state {
	case StateUnjoined:
		logger.Debug().Str("type", env.Type).Msg("message before join dropped")
		return nil
	case StateClosed:
		return ErrPeerClosed
	}

	n := p.svc.sw.Broadcast(ctx, sessionID, p.ep, msg)
	logger.Trace().
		Str("type", env.Type).
		Int("recipients", n).
		Msg("message relayed")
	return nil
}

func (p *Peer) join(sessionID string) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	switch p.state {
	case StateJoined:
		if sessionID == p.sessionID {
			return nil
		}
		return ErrAlreadyJoined
	case StateClosed:
		return ErrPeerClosed
	}

	p.svc.sw.Join(sessionID, p.ep)
	p.sessionID = sessionID
	p.state = StateJoined
	p.logger = p.logger.With().Str("sessionID", sessionID).Logger()
	p.logger.Debug().Msg("peer joined session")
	return nil
}

// Close removes the peer from its room. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.mx.Lock()
		defer p.mx.Unlock()

		if p.state == StateJoined {
			p.svc.sw.Leave(p.sessionID, p.ep)
		}
		p.state = StateClosed
		p.logger.Debug().Msg("signaling session ended")
	})
}
