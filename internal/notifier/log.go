package notifier

import (
	"log"
	"os"
)

// NewLogListener 返回仅打印事件的监听器，适合开发阶段使用。
func NewLogListener(logger *log.Logger) Listener {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return func(e Event) {
		if e.UserID == "" {
			logger.Printf("event=%s", e.Kind)
			return
		}
		logger.Printf("event=%s user=%s", e.Kind, e.UserID)
	}
}
