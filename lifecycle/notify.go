package lifecycle

import "time"

// NotificationKind distinguishes the user-facing events the controller emits.
type NotificationKind string

const (
	// NoticeApprovalRequest asks the user to approve or reject a goal.
	NoticeApprovalRequest NotificationKind = "approval_request"
	// NoticeProgressUpdate reports a crossed progress threshold.
	NoticeProgressUpdate NotificationKind = "progress_update"
	// NoticeCompletion presents a finished goal and its deliverables.
	NoticeCompletion NotificationKind = "completion"
)

// Notification is one user-facing event about a goal.
type Notification struct {
	Kind     NotificationKind
	GoalID   string
	Title    string
	Message  string
	Progress int
	At       time.Time
}

// Notifier receives user-facing notifications. Implementations must not
// block; the controller calls Notify inline from its operation path.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }
