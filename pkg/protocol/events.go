package protocol

// Stream event names pushed by the automation platform.
const (
	EventChatopsAnnouncement = "st2.announcement__chatops"
	EventTwoFactorConfirmed  = "st2.announcement__2fa"

	// Alias model changes; any of these schedules an alias reload.
	EventAliasCreate = "st2.action_alias__create"
	EventAliasUpdate = "st2.action_alias__update"
	EventAliasDelete = "st2.action_alias__delete"
)

// DefaultNotificationRoute tags executions so the platform routes
// completion notices back to this relay.
const DefaultNotificationRoute = "hubot"

// Webhook response statuses.
const (
	WebhookStatusCompleted = "completed"
	WebhookStatusFailed    = "failed"
)

// Outbound message metadata keys understood by channels.
const (
	MetaStatus  = "status"  // StatusSuccess or StatusFailure
	MetaColor   = "color"   // explicit attachment color, overrides status
	MetaWhisper = "whisper" // "true": deliver to the user directly
	MetaUser    = "user"    // addressee user on the platform
)

// Values for MetaStatus.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
