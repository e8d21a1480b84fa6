package client

import (
	"sync"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
)

// Notification is the user-visible "new message" event.
type Notification struct {
	ConversationID string
	MessageID      string
	SenderID       string
	Text           string
}

// NotificationDeduper decides, after each sync cycle, whether the newest
// message deserves a notification: at most one per message id, never for the
// viewer's own messages. Prime seeds the marker from the initial load so
// reopening a conversation renders stale state without replaying a
// notification for it.
type NotificationDeduper struct {
	mu           sync.Mutex
	viewerID     string
	activeConv   string
	lastNotified string // message id already notified for activeConv
}

func NewNotificationDeduper(viewerID string) *NotificationDeduper {
	return &NotificationDeduper{viewerID: viewerID}
}

// Prime switches the active conversation and seeds the already-notified
// marker with the newest message visible at load time.
func (d *NotificationDeduper) Prime(conversationID string, msgs []*chatmodel.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeConv = conversationID
	d.lastNotified = ""
	if newest := newestMessage(msgs); newest != nil {
		d.lastNotified = newest.ID
	}
}

// Observe inspects the merged list for one conversation and returns a
// notification exactly once per genuinely new incoming message, else nil.
func (d *NotificationDeduper) Observe(conversationID string, msgs []*chatmodel.Message) *Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conversationID != d.activeConv {
		return nil // stale cycle from a previous selection
	}
	newest := newestMessage(msgs)
	if newest == nil {
		return nil
	}
	if newest.SenderID == d.viewerID {
		// own sends advance the marker silently so they never mask or
		// re-trigger anything later
		d.lastNotified = newest.ID
		return nil
	}
	if newest.ID == d.lastNotified {
		return nil
	}
	d.lastNotified = newest.ID
	return &Notification{
		ConversationID: conversationID,
		MessageID:      newest.ID,
		SenderID:       newest.SenderID,
		Text:           newest.Text,
	}
}
