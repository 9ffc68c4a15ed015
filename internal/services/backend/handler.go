// -----------------------------------------------------------------------
// Background handler - serialized message dispatch over the item store
// -----------------------------------------------------------------------

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Handler is the background side of the message bus: every request from the
// capture context or the CLI lands here. The bus serializes calls, so the
// handler can read-modify-write storage without its own locking discipline.
type Handler struct {
	store    interfaces.ItemStorage
	enricher interfaces.EnrichmentService
	exporter interfaces.ExportService
	importer interfaces.ImportService
	logger   arbor.ILogger
}

// NewHandler wires the background services. Enricher, exporter, and
// importer may each be nil; their messages then answer with an error reply.
func NewHandler(store interfaces.ItemStorage, enricher interfaces.EnrichmentService, exporter interfaces.ExportService, importer interfaces.ImportService, logger arbor.ILogger) *Handler {
	return &Handler{
		store:    store,
		enricher: enricher,
		exporter: exporter,
		importer: importer,
		logger:   logger,
	}
}

// Handle dispatches one message.
func (h *Handler) Handle(ctx context.Context, msg models.Message) models.Reply {
	switch msg.Kind {
	case models.MsgAddItems:
		return h.addItems(ctx, msg.Items)
	case models.MsgGet:
		return h.get(ctx)
	case models.MsgClear:
		return h.clear(ctx)
	case models.MsgSetCapturing:
		return h.setCapturing(ctx, msg.Capturing)
	case models.MsgDownloadCSV:
		return h.export(ctx, true)
	case models.MsgDownloadJSON:
		return h.export(ctx, false)
	case models.MsgEnrichEmails:
		return h.enrich(ctx)
	case models.MsgImport:
		return h.importItems(ctx, msg.Items, msg.Niche, msg.Location)
	case models.MsgPanelDebug:
		return h.panelDebug(ctx, msg.Debug)
	default:
		return models.Reply{Err: fmt.Sprintf("unknown message kind %q", msg.Kind)}
	}
}

func (h *Handler) addItems(ctx context.Context, items []models.CaptureItem) models.Reply {
	if len(items) == 0 {
		return models.Reply{Err: "empty item batch"}
	}
	total, err := h.store.AddItems(ctx, items)
	if err != nil {
		return models.Reply{Err: err.Error()}
	}
	return models.Reply{OK: true, Total: total}
}

// get assembles the full status view. Auxiliary reads that fail degrade to
// their zero values rather than failing the whole status call.
func (h *Handler) get(ctx context.Context) models.Reply {
	items, err := h.store.GetAll(ctx)
	if err != nil {
		return models.Reply{Err: err.Error()}
	}

	reply := models.Reply{OK: true, Items: items, Total: len(items)}

	if state, err := h.store.GetState(ctx); err == nil {
		reply.State = state
		reply.Capturing = state.Capturing
	}
	if lastErr, err := h.store.GetLastError(ctx); err == nil {
		reply.LastError = lastErr
	}
	if record, err := h.store.GetLastImport(ctx); err == nil {
		reply.LastImport = record
	}
	if snap, err := h.store.GetDebugSnapshot(ctx); err == nil {
		reply.LastDebug = snap
	}
	return reply
}

func (h *Handler) clear(ctx context.Context) models.Reply {
	if err := h.store.Clear(ctx); err != nil {
		return models.Reply{Err: err.Error()}
	}
	h.logger.Info().Msg("Item store cleared")
	return models.Reply{OK: true}
}

func (h *Handler) setCapturing(ctx context.Context, capturing bool) models.Reply {
	if err := h.store.SetCapturing(ctx, capturing); err != nil {
		return models.Reply{Err: err.Error()}
	}
	h.logger.Debug().Bool("capturing", capturing).Msg("Capturing flag updated")
	return models.Reply{OK: true, Capturing: capturing}
}

func (h *Handler) export(ctx context.Context, asCSV bool) models.Reply {
	if h.exporter == nil {
		return models.Reply{Err: "export service not configured"}
	}
	var path string
	var err error
	if asCSV {
		path, err = h.exporter.ExportCSV(ctx)
	} else {
		path, err = h.exporter.ExportJSON(ctx)
	}
	if err != nil {
		return models.Reply{Err: err.Error()}
	}
	return models.Reply{OK: true, Path: path}
}

func (h *Handler) enrich(ctx context.Context) models.Reply {
	if h.enricher == nil {
		return models.Reply{Err: "enrichment service not configured"}
	}
	processed, failures, err := h.enricher.Enrich(ctx)
	if err != nil {
		return models.Reply{Err: err.Error()}
	}
	return models.Reply{OK: true, Processed: processed, Failures: failures}
}

// importItems forwards every item with at least one contact channel. A
// caller-supplied item set is honored as-is; an empty one means the whole
// store. Transport failures surface as LastError; a completed-but-rejected
// request is stored as the last import record.
func (h *Handler) importItems(ctx context.Context, items []models.CaptureItem, niche, location string) models.Reply {
	if h.importer == nil {
		return models.Reply{Err: "import service not configured"}
	}

	if len(items) == 0 {
		var err error
		items, err = h.store.GetAll(ctx)
		if err != nil {
			return models.Reply{Err: err.Error()}
		}
	}

	var leads []models.CaptureItem
	for _, item := range items {
		if item.HasContact() {
			leads = append(leads, item)
		}
	}
	if len(leads) == 0 {
		return models.Reply{Err: "no items with contact details to import"}
	}

	record, err := h.importer.Import(ctx, leads, niche, location)
	if err != nil {
		if serr := h.store.SetLastError(ctx, fmt.Sprintf("import failed: %v", err)); serr != nil {
			h.logger.Warn().Err(serr).Msg("Failed to record import failure")
		}
		return models.Reply{Err: err.Error()}
	}

	if serr := h.store.SetLastImport(ctx, record); serr != nil {
		h.logger.Warn().Err(serr).Msg("Failed to record import result")
	}
	if record.Status < 200 || record.Status >= 300 {
		msg := fmt.Sprintf("import rejected with status %d", record.Status)
		if serr := h.store.SetLastError(ctx, msg); serr != nil {
			h.logger.Warn().Err(serr).Msg("Failed to record import rejection")
		}
		return models.Reply{OK: false, LastImport: record, Err: msg}
	}

	if record.Status == http.StatusOK || record.Status == http.StatusCreated {
		if serr := h.store.SetLastError(ctx, ""); serr != nil {
			h.logger.Warn().Err(serr).Msg("Failed to clear last error")
		}
	}
	return models.Reply{OK: true, LastImport: record, Total: record.Count}
}

func (h *Handler) panelDebug(ctx context.Context, snap *models.DebugSnapshot) models.Reply {
	if snap == nil {
		return models.Reply{Err: "missing snapshot"}
	}
	if err := h.store.SetDebugSnapshot(ctx, snap); err != nil {
		return models.Reply{Err: err.Error()}
	}
	h.logger.Debug().Str("id", snap.ID).Msg("Panel snapshot stored")
	return models.Reply{OK: true}
}
