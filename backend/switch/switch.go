package _switch

import (
	"context"
	"errors"
	"time"

	"github.com/adwski/proctor-signaling/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

type (
	RoomStore interface {
		Add(sessionID string, ep model.Endpoint) bool
		Remove(sessionID string, ep model.Endpoint) (removed, deleted bool)
		Members(sessionID string) []model.Endpoint
		GetRoom(sessionID string) (model.RoomInfo, error)
		Rooms() []model.RoomInfo
	}

	Config struct {
		Logger         *zerolog.Logger
		Store          RoomStore
		ForwardTimeout time.Duration
	}

	// Switch routes messages between endpoints of the same room.
	// It is the only component that mutates room membership.
	Switch struct {
		logger     zerolog.Logger
		store      RoomStore
		fwdTimeout time.Duration
	}
)

func NewSwitch(cfg Config) *Switch {
	fwdTimeout := cfg.ForwardTimeout
	if fwdTimeout <= 0 {
		fwdTimeout = defaultFwdTimout
	}
	return &Switch{
		logger:     cfg.Logger.With().Str("component", "switch").Logger(),
		store:      cfg.Store,
		fwdTimeout: fwdTimeout,
	}
}

func (sw *Switch) Join(sessionID string, ep model.Endpoint) {
	created := sw.store.Add(sessionID, ep)
	sw.logger.Debug().
		Str("sessionID", sessionID).
		Str("endpoint", ep.ID()).
		Bool("roomCreated", created).
		Msg("endpoint joined")
}

func (sw *Switch) Leave(sessionID string, ep model.Endpoint) {
	removed, deleted := sw.store.Remove(sessionID, ep)
	if !removed {
		return
	}
	sw.logger.Debug().
		Str("sessionID", sessionID).
		Str("endpoint", ep.ID()).
		Bool("roomDeleted", deleted).
		Msg("endpoint left")
}

// Broadcast delivers payload to every room member except sender and
// returns the number of members that accepted it. Missing rooms are ignored.
func (sw *Switch) Broadcast(ctx context.Context, sessionID string, sender model.Endpoint, payload []byte) int {
	var sent int
	for _, ep := range sw.store.Members(sessionID) {
		if ep.ID() == sender.ID() {
			continue
		}
		annSent, canceled := sw.send(ctx, sessionID, sender, ep, payload)
		if canceled {
			break
		}
		if annSent {
			sent++
		}
	}
	if sent == 0 {
		sw.logger.Debug().
			Str("sessionID", sessionID).
			Str("src", sender.ID()).
			Msg("broadcast did not reach anyone")
	}
	return sent
}

func (sw *Switch) Rooms() []model.RoomInfo {
	return sw.store.Rooms()
}

func (sw *Switch) GetRoom(sessionID string) (model.RoomInfo, error) {
	return sw.store.GetRoom(sessionID)
}

func (sw *Switch) send(ctx context.Context, sessionID string, src, dst model.Endpoint, payload []byte) (bool, bool) {
	if ctx.Err() != nil {
		return false, true
	}
	fwdCtx, cancel := context.WithTimeout(ctx, sw.fwdTimeout)
	defer cancel()

	err := dst.Deliver(fwdCtx, payload)
	switch {
	case err == nil:
		sw.logger.Trace().
			Str("sessionID", sessionID).
			Str("src", src.ID()).
			Str("dst", dst.ID()).
			Msg("message is forwarded")
		return true, false
	case ctx.Err() != nil:
		return false, true
	case errors.Is(err, model.ErrEndpointClosed):
		sw.logger.Debug().
			Str("sessionID", sessionID).
			Str("src", src.ID()).
			Str("dst", dst.ID()).
			Msg("endpoint is closing, message dropped")
	default:
		sw.logger.Error().Err(err).
			Str("sessionID", sessionID).
			Str("src", src.ID()).
			Str("dst", dst.ID()).
			Msg("dead endpoint")
	}
	return false, false
}
