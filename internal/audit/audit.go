package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Audit actions for interaction-service.
const (
	ActionJoinRoom          = "room.join"
	ActionLeaveRoom         = "room.leave"
	ActionUpdateSeat        = "seat.update"
	ActionInvite            = "cohost.invite"
	ActionApply             = "cohost.apply"
	ActionAcceptApplication = "cohost.application.accept"
	ActionRejectApplication = "cohost.application.reject"
	ActionAcceptInvitation  = "cohost.invitation.accept"
	ActionRejectInvitation  = "cohost.invitation.reject"
	ActionForceEnd          = "cohost.force_end"
	ActionEndBroadcasting   = "cohost.end"
	ActionBattleInvite      = "battle.invite"
	ActionBattleAccept      = "battle.accept"
	ActionBattleReject      = "battle.reject"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldTarget = "target"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, roomID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoomID, roomID).
		Msg(msg)
}

// LogTarget emits an audit entry about an action aimed at a user or room.
func LogTarget(ctx context.Context, action string, roomID string, target string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoomID, roomID).
		Str(FieldTarget, target).
		Msg(msg)
}
