package websocket

import (
	"context"
	"errors"
	"time"

	apierrors "codeberg.org/waypair/server/internal/errors"
	"codeberg.org/waypair/server/internal/logger"
	"codeberg.org/waypair/server/sessions"
)

const handlerTimeout = 5 * time.Second

// handles create-session messages: allocates a code, creates the session
// with the requester in the first slot, and subscribes the requester to the
// code's room. On failure only the requester hears about it and no session
// is left behind.
func CreateSessionHandler(generator *sessions.Generator) MessageHandler {
	return func(hub *Hub, client *Client, _ *Message) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		session, err := generator.Allocate(ctx, client.ID)
		if err != nil {
			switch {
			case errors.Is(err, sessions.ErrCodeSpaceExhausted):
				client.SendError("server_error", "Failed to generate unique session code", "")
			case errors.Is(err, sessions.ErrAlreadyInSession):
				client.SendError("invalid_operation", "Already in an active session", "")
			default:
				client.SendError("server_error", "Failed to create session", apierrors.SanitizeError(err))
			}

			return err
		}

		hub.Subscribe(session.Code, client)

		reply, err := NewMessage(TypeSessionCreated, SessionCreatedPayload{Code: session.Code})
		if err != nil {
			return err
		}

		if err := client.Send(reply); err != nil {
			return err
		}

		logger.Info("session created",
			"code", session.Code,
			"client_id", client.ID,
		)

		return nil
	}
}

// handles join-session messages: fills the second slot, subscribes the
// joiner to the room, acks the joiner, then tells both participants the
// session is paired.
func JoinSessionHandler(store sessions.Store) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		var payload JoinSessionPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError("validation_error", "failed to parse join request", err.Error())
			return err
		}

		if !apierrors.IsValidSessionCode(payload.Code) {
			client.SendError("bad_request", "Invalid session code", "")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		// subscribe before the join commits: the instant another connection
		// can observe the paired session, its termination events must
		// already reach this client
		hub.Subscribe(payload.Code, client)

		session, err := store.Join(ctx, payload.Code, client.ID)
		if err != nil {
			hub.Unsubscribe(payload.Code, client.ID)

			switch {
			case errors.Is(err, sessions.ErrNotFound):
				client.SendError("session_not_found", "Invalid session code", "")
				return nil
			case errors.Is(err, sessions.ErrSessionFull):
				client.SendError("conflict", "Session is full", "")
				return nil
			case errors.Is(err, sessions.ErrSelfJoin):
				client.SendError("invalid_operation", "Cannot join your own session", "")
				return nil
			case errors.Is(err, sessions.ErrAlreadyInSession):
				client.SendError("invalid_operation", "Already in an active session", "")
				return nil
			default:
				client.SendError("server_error", "Failed to join session", apierrors.SanitizeError(err))
				return err
			}
		}

		joined, err := NewMessage(TypeSessionJoined, SessionJoinedPayload{Code: session.Code})
		if err != nil {
			return err
		}

		if err := client.Send(joined); err != nil {
			return err
		}

		// both participants learn the session is paired
		ready, err := NewMessage(TypeSessionReady, nil)
		if err != nil {
			return err
		}

		hub.BroadcastToRoom(session.Code, ready, "")

		logger.Info("session paired",
			"code", session.Code,
			"client_id", client.ID,
		)

		return nil
	}
}

// handles update-location messages: records the sender's location and relays
// it to the one other participant. Lookup misses and non-participant senders
// are dropped silently; the session may have just ended, and a stale or
// forged sender gets no confirmation the session exists.
func UpdateLocationHandler(store sessions.Store) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.allowLocationUpdate() {
			client.SendError("too_many_requests", "too many location updates", "")
			return ErrRateLimitExceeded
		}

		var payload UpdateLocationPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError("validation_error", "failed to parse location update", err.Error())
			return err
		}

		if payload.Lat < -90 || payload.Lat > 90 || payload.Lng < -180 || payload.Lng > 180 {
			client.SendError("validation_error", "coordinates out of range", "")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		err := store.UpdateLocation(ctx, payload.Code, client.ID, payload.Lat, payload.Lng)
		if err != nil {
			if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrNotAParticipant) {
				logger.Debug("dropping location update",
					"code", payload.Code,
					"client_id", client.ID,
					"reason", err,
				)
				return nil
			}

			client.SendError("server_error", "Failed to update location", apierrors.SanitizeError(err))

			return err
		}

		relay, err := NewMessage(TypeLocationUpdated, LocationUpdatedPayload{
			Lat: payload.Lat,
			Lng: payload.Lng,
		})
		if err != nil {
			return err
		}

		// the sender never hears its own update back
		hub.BroadcastToRoom(payload.Code, relay, client.ID)

		return nil
	}
}

// handles leave-session messages: only a slot holder may terminate the
// session; everyone in the room, the leaver included, hears session-ended.
func LeaveSessionHandler(store sessions.Store) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		var payload LeaveSessionPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError("validation_error", "failed to parse leave request", err.Error())
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		// participant check and deletion are one atomic store operation: a
		// stale leaver cannot delete a session its code was reissued to
		if err := store.RemoveIfParticipant(ctx, payload.Code, client.ID); err != nil {
			switch {
			case errors.Is(err, sessions.ErrNotFound):
				// session already gone, nothing to do
				return nil
			case errors.Is(err, sessions.ErrNotAParticipant):
				logger.Debug("ignoring leave request from non-participant",
					"code", payload.Code,
					"client_id", client.ID,
				)
				return nil
			default:
				client.SendError("server_error", "Failed to leave session", apierrors.SanitizeError(err))
				return err
			}
		}

		hub.EndRoom(payload.Code, "participant left")

		logger.Info("session ended",
			"code", payload.Code,
			"client_id", client.ID,
		)

		return nil
	}
}

// handles ping messages from clients (keep-alive)
func PingHandler() MessageHandler {
	return func(_ *Hub, client *Client, _ *Message) error {
		pongMsg, err := NewMessage(TypePong, nil)
		if err != nil {
			return err
		}

		client.Send(pongMsg) //nolint:errcheck,gosec // best-effort pong

		return nil
	}
}

// tears down every session the disconnected client participated in.
// Registered as the hub's disconnect callback: a drop by either participant
// always terminates the session, since one-sided location sharing cannot
// usefully continue. Duplicate disconnect signals race harmlessly against
// each other and against the cleanup sweep because removal is idempotent.
func DisconnectHandler(store sessions.Store) func(client *Client) {
	return func(client *Client) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		codes, err := store.FindByParticipant(ctx, client.ID)
		if err != nil {
			logger.ErrorErr(err, "failed to find sessions for disconnected client",
				"client_id", client.ID,
			)
			return
		}

		for _, code := range codes {
			err := store.RemoveIfParticipant(ctx, code, client.ID)

			if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrNotAParticipant) {
				// torn down concurrently, or the code was already reissued;
				// either way the room under this code is not ours to end
				continue
			}

			if err != nil {
				logger.ErrorErr(err, "failed to remove session on disconnect",
					"code", code,
					"client_id", client.ID,
				)
				continue
			}

			client.hub.EndRoom(code, "participant disconnected")

			logger.Info("session ended after disconnect",
				"code", code,
				"client_id", client.ID,
			)
		}
	}
}
