package safe

import (
	"github.com/threadswap/chat-service/logger"

	"go.uber.org/zap"
)

// Go runs f on a new goroutine and turns a panic into an error log instead
// of a process crash. Background loops (pollers, servers) go through here.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic",
					zap.String("name", name),
					zap.Any("panic", r))
			}
		}()
		f()
	}()
}
