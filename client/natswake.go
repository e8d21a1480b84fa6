package client

import (
	"github.com/threadswap/chat-service/module/chat/service"
	"github.com/threadswap/chat-service/service/natsx"
)

// SubscribeWake pokes the sync client whenever the server announces a new
// message in the conversation, so the next poll happens immediately instead
// of up to one interval later. Losing events is fine - the interval poll
// still delivers - which is why this rides plain core NATS. The subscription
// drains with the client's Close.
func SubscribeWake(nc *natsx.Client, conversationID string, sc *SyncClient) error {
	return nc.Subscribe(service.WakeSubjectPrefix+conversationID, func([]byte) {
		sc.Wake()
	})
}
