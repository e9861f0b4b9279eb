package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Audit actions for the realtime service.
const (
	ActionConnect         = "chat.connect"
	ActionAuthFailed      = "chat.auth_failed"
	ActionJoinRoom        = "chat.join_room"
	ActionJoinDenied      = "chat.join_denied"
	ActionLeaveRoom       = "chat.leave_room"
	ActionSendMessage     = "chat.send_message"
	ActionDisconnect      = "chat.disconnect"
	ActionForceDisconnect = "chat.force_disconnect"
	ActionPush            = "chat.push"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// entry starts an info-level audit line.
func entry(ctx context.Context, action, userID string) *zerolog.Event {
	l := log.Ctx(ctx)
	return l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
}

// Log records an action by userID.
func Log(ctx context.Context, action, userID, msg string) {
	entry(ctx, action, userID).Msg(msg)
}

// LogTarget records an action on a room, message or other user.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	entry(ctx, action, userID).Str(FieldTargetID, targetID).Msg(msg)
}

// LogWithDetail records an action with a free-form detail such as an error
// or a close reason.
func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	entry(ctx, action, userID).Str(FieldDetail, detail).Msg(msg)
}
