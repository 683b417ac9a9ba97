package feed

import (
	"log/slog"

	"github.com/vzcode/vzsync/internal/host"
	"github.com/vzcode/vzsync/internal/reconcile"
)

// Handler formats daemon events as feed messages.
type Handler struct {
	server *Server
	logger *slog.Logger
}

// NewHandler creates a new event handler connected to a feed server
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default().With("component", "feed")
	}
	return &Handler{server: server, logger: logger}
}

// OnPatch broadcasts an applied patch.
func (h *Handler) OnPatch(ev host.Event) {
	msg, err := NewMessage(MessageTypePatch, PatchData{Version: ev.Version, Patch: ev.Patch})
	if err != nil {
		h.logger.Error("failed to format patch", "version", ev.Version, "error", err)
		return
	}
	h.server.Broadcast(msg)
}

// OnSave broadcasts the summary of a reconciliation pass. Passes with
// nothing to do are not announced.
func (h *Handler) OnSave(res *reconcile.Result) {
	if !res.Changed() {
		return
	}
	counts := res.Counts()
	data := SaveData{
		Steps:      len(res.Outcomes),
		Creates:    counts[reconcile.ActionCreate],
		Updates:    counts[reconcile.ActionUpdate],
		Renames:    counts[reconcile.ActionRename],
		Deletes:    counts[reconcile.ActionDelete],
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
	}
	for _, f := range res.Failures() {
		data.Failures = append(data.Failures, FailureData{
			Action: string(f.Step.Action),
			Path:   f.Step.Path,
			From:   f.Step.From,
			Error:  f.Err.Error(),
		})
	}

	msg, err := NewMessage(MessageTypeSave, data)
	if err != nil {
		h.logger.Error("failed to format save summary", "error", err)
		return
	}
	h.server.Broadcast(msg)
}
