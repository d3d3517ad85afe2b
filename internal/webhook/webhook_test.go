package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const alertPayload = `{
  "receiver": "ops",
  "status": "firing",
  "alerts": [
    {
      "status": "firing",
      "labels": {"alertname": "NFSDown", "severity": "critical"},
      "annotations": {"summary": "NFS mount lost", "description": "nfs_mount_status is 0 on web1"},
      "startsAt": "2026-01-01T00:00:00Z"
    },
    {
      "status": "resolved",
      "labels": {"alertname": "HighCPU"},
      "annotations": {"summary": "CPU back to normal"}
    }
  ]
}`

func TestHandler_LogsAlerts(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewHandler(zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(alertPayload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	alerts := logs.FilterMessage("Alert").All()
	if assert.Len(t, alerts, 2) {
		assert.Equal(t, "NFSDown", alerts[0].ContextMap()["alertname"])
		assert.Equal(t, "nfs_mount_status is 0 on web1", alerts[0].ContextMap()["description"])
		assert.Equal(t, "resolved", alerts[1].ContextMap()["status"])
	}
	assert.Equal(t, 1, logs.FilterMessage("Alert notification received").Len())
}

func TestHandler_MalformedJSON(t *testing.T) {
	h := NewHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed")
}

func TestHandler_PayloadTooLarge(t *testing.T) {
	h := NewHandler(zap.NewNop())
	big := `{"status":"` + strings.Repeat("x", maxPayloadBytes) + `"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_BodyReadError(t *testing.T) {
	h := NewHandler(zap.NewNop())
	body := io.MultiReader(strings.NewReader(`{"status":"fir`), iotest.ErrReader(io.ErrUnexpectedEOF))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreadable payload")
}
