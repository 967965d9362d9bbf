package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AcceptInviteCommand struct {
	InviteID uuid.UUID
	UserID   uuid.UUID
}

func (c AcceptInviteCommand) Validate() error {
	if c.InviteID == uuid.Nil {
		return fmt.Errorf("invalid InviteID - '%s'", c.InviteID)
	}

	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

type AcceptInviteResponse struct {
	Session domain.GameSession `json:"session"`
}

func HandleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inviteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command := AcceptInviteCommand{
		InviteID: inviteID,
		UserID:   core.Identity(ctx).UserID,
	}

	response, err := mediator.Send[AcceptInviteCommand, AcceptInviteResponse](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type AcceptInviteCommandHandler struct {
	invites      *domain.InviteRegistry
	sessions     *domain.SessionRegistry
	store        *duel.GameStore
	chat         *messaging.ChatAnnotator
	publisher    messaging.Publisher
	gameDuration time.Duration
	logger       *zap.Logger
}

func NewAcceptInviteCommandHandler(
	invites *domain.InviteRegistry,
	sessions *domain.SessionRegistry,
	store *duel.GameStore,
	chat *messaging.ChatAnnotator,
	publisher messaging.Publisher,
	gameDuration time.Duration,
	logger *zap.Logger,
) *AcceptInviteCommandHandler {
	return &AcceptInviteCommandHandler{
		invites:      invites,
		sessions:     sessions,
		store:        store,
		chat:         chat,
		publisher:    publisher,
		gameDuration: gameDuration,
		logger:       logger,
	}
}

func (h *AcceptInviteCommandHandler) Handle(
	ctx context.Context,
	request AcceptInviteCommand,
) (AcceptInviteResponse, error) {
	invite, ok := h.invites.Get(request.InviteID)
	if !ok {
		err := fmt.Errorf("invite '%s' not found or expired", request.InviteID)
		h.publisher.Publish(messaging.UserRoom(request.UserID), messaging.EventInviteError, inviteErrorPayload{
			Message: "invite not found or expired",
		})
		return AcceptInviteResponse{}, core.NewCommandError(404, err)
	}

	if invite.ToUserID != request.UserID {
		err := fmt.Errorf("user '%s' is not the invite recipient", request.UserID)
		return AcceptInviteResponse{}, core.NewCommandError(403, err)
	}

	// Held across check-and-create so two accepts sharing either player
	// cannot both pass the conflict check.
	unlock := h.sessions.LockPair(invite.FromUserID, invite.ToUserID)
	defer unlock()

	busy := h.sessions.ActiveForPlayers(invite.FromUserID, invite.ToUserID)
	if !busy {
		durableBusy, err := h.store.HasActiveForPlayers(ctx, invite.FromUserID, invite.ToUserID)
		if err != nil {
			return AcceptInviteResponse{}, core.NewCommandError(500, err)
		}
		busy = durableBusy
	}

	if busy {
		return AcceptInviteResponse{}, h.rejectBusy(ctx, invite)
	}

	// Take is the linearization point - a concurrent decline or TTL expiry
	// that got here first leaves nothing to accept.
	invite, ok = h.invites.Take(request.InviteID)
	if !ok {
		err := fmt.Errorf("invite '%s' not found or expired", request.InviteID)
		return AcceptInviteResponse{}, core.NewCommandError(404, err)
	}

	if err := h.chat.SetInviteStatus(ctx, invite.ID, domain.InviteStatusAccepted); err != nil {
		h.logger.Warn(
			"failed to mark invite artifact accepted",
			zap.String("invite_id", invite.ID.String()),
			zap.Error(err),
		)
	}

	player1 := domain.Player{
		ID:          invite.FromUserID,
		DisplayName: invite.FromDisplayName,
		Avatar:      invite.FromAvatar,
	}
	player2 := domain.Player{
		ID:          invite.ToUserID,
		DisplayName: invite.ToDisplayName,
		Avatar:      invite.ToAvatar,
	}

	session := domain.NewGameSession(uuid.New(), player1, player2, h.gameDuration)

	if err := h.store.Insert(ctx, session); err != nil {
		if errors.Is(err, duel.ErrPairActive) {
			return AcceptInviteResponse{}, h.rejectBusy(ctx, invite)
		}
		return AcceptInviteResponse{}, core.NewCommandError(500, err)
	}

	h.sessions.Put(session)

	payload := struct {
		Invite  domain.GameInvite  `json:"invite"`
		Session domain.GameSession `json:"session"`
	}{Invite: invite, Session: *session}

	h.publisher.Publish(messaging.UserRoom(invite.FromUserID), messaging.EventGameInviteAccepted, payload)
	h.publisher.Publish(messaging.UserRoom(invite.ToUserID), messaging.EventGameInviteAccepted, payload)

	return AcceptInviteResponse{Session: *session}, nil
}

func (h *AcceptInviteCommandHandler) rejectBusy(ctx context.Context, invite domain.GameInvite) error {
	// The invite cannot be fulfilled anymore. Retire it so retries fail fast.
	if _, ok := h.invites.Take(invite.ID); ok {
		if err := h.chat.SetInviteStatus(ctx, invite.ID, domain.InviteStatusExpired); err != nil {
			h.logger.Warn(
				"failed to mark invite artifact expired",
				zap.String("invite_id", invite.ID.String()),
				zap.Error(err),
			)
		}
	}

	message := inviteErrorPayload{Message: "a participant is already in an active game"}
	h.publisher.Publish(messaging.UserRoom(invite.FromUserID), messaging.EventInviteError, message)
	h.publisher.Publish(messaging.UserRoom(invite.ToUserID), messaging.EventInviteError, message)

	return core.NewCommandError(409, fmt.Errorf("a participant is already in an active game"))
}
