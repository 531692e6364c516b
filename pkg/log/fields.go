package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService   = "service"
	FieldComponent = "component"

	// Coordination
	FieldRoomID    = "room_id"
	FieldChannel   = "channel"
	FieldCmd       = "cmd"
	FieldCommandID = "command_id"
	FieldOperate   = "operate"
	FieldSeatIndex = "seat_index"
	FieldQueue     = "queue"
	FieldBattleID  = "battle_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
