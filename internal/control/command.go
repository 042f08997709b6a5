package control

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// CommandPath 是管理端口上的同步命令入口。
const CommandPath = "/-/control"

// CommandHandler 以 POST 接收一条 JSON 命令：有回复时返回 200 JSON，
// 否则（含未知或格式错误的命令）返回 204。
type CommandHandler struct {
	channel *Channel
	logger  *logrus.Logger
}

// NewCommandHandler 构造命令处理器。
func NewCommandHandler(channel *Channel, logger *logrus.Logger) *CommandHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &CommandHandler{channel: channel, logger: logger}
}

func (h *CommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, readLimit))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	reply, ok := h.channel.HandleRaw(context.WithoutCancel(r.Context()), raw)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		h.logger.WithError(err).WithField("action", "control_reply").Debug("control_reply_failed")
	}
}
