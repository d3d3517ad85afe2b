package exposition

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/vitalis-app/exporter/internal/models"
	"github.com/vitalis-app/exporter/internal/telemetry"
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	Read() (*models.Snapshot, bool)
	Ready() bool
}

// MetricsHandler serves the current snapshot. It never triggers a
// collection; before the first cycle it serves the header-only placeholder.
type MetricsHandler struct {
	store     SnapshotReader
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
}

// NewMetricsHandler creates the /metrics handler. tel may be nil.
func NewMetricsHandler(store SnapshotReader, tel *telemetry.Telemetry, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{store: store, telemetry: tel, logger: logger}
}

// ServeHTTP renders the snapshot as text 0.0.4, or as delimited protobuf when
// the scraper asks for it.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, _ := h.store.Read()

	format := expfmt.Negotiate(r.Header)
	if format.FormatType() == expfmt.TypeProtoDelim {
		h.serveProto(w, snap, format)
		return
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, snap.Set); err != nil {
		h.logger.Error("Failed to render metrics", zap.Error(err))
		http.Error(w, "failed to render metrics", http.StatusInternalServerError)
		return
	}
	h.telemetry.ObserveScrape("text")

	w.Header().Set("Content-Type", TextContentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("Failed to write metrics response", zap.Error(err))
	}
}

func (h *MetricsHandler) serveProto(w http.ResponseWriter, snap *models.Snapshot, format expfmt.Format) {
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range ToMetricFamilies(snap.Set) {
		if err := enc.Encode(mf); err != nil {
			h.logger.Error("Failed to encode metric family",
				zap.String("family", mf.GetName()),
				zap.Error(err))
			http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
			return
		}
	}
	h.telemetry.ObserveScrape("protobuf")

	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("Failed to write metrics response", zap.Error(err))
	}
}

// errNotCollected is reported by the readiness check before the first cycle.
var errNotCollected = errors.New("no snapshot published yet")

// NewReadyHandler returns a readiness handler that answers 503 until the
// first snapshot is published and 200 afterwards.
func NewReadyHandler(store SnapshotReader) http.Handler {
	health := healthcheck.NewHandler()
	health.AddReadinessCheck("snapshot", func() error {
		if !store.Ready() {
			return errNotCollected
		}
		return nil
	})
	return http.HandlerFunc(health.ReadyEndpoint)
}
