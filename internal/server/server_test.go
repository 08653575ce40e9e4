package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"capplan/internal/backup"
	"capplan/internal/document"
	"capplan/internal/service"
	"capplan/internal/writer"
	"capplan/pkg/capacity"
)

type harness struct {
	srv    *Server
	writer *writer.Serializer
}

func newHarness(t *testing.T) harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capacity.json")
	store, err := document.NewStore(path, document.Options{}, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	w := writer.New(store, backup.NewRotation(store.Path(), backup.DefaultKeep, nil), writer.Options{Metrics: writer.NewMetrics(reg)}, nil)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	svc := service.New(w, service.Options{}, nil)
	return harness{srv: New(svc, Options{Gatherer: reg}, nil), writer: w}
}

func (h harness) do(t *testing.T, method, target, body string, headers ...string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeError(t *testing.T, data []byte) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Error
}

func TestAllocationReplaceEndToEnd(t *testing.T) {
	h := newHarness(t)
	status, _ := h.do(t, http.MethodPost, "/projects", `[{"id":"P1","customerName":"Acme","projectName":"Rollout","projectType":"Software"}]`)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodPost, "/teamMembers", `[{"id":"M1","name":"Maria","email":"maria@example.com","isActive":true}]`)
	require.Equal(t, http.StatusOK, status)

	status, body := h.do(t, http.MethodPost, "/allocations",
		`[{"id":"A1","projectId":"P1","productManagerId":"M1","year":2025,"month":11,"sprint":1,"allocationPercentage":50}]`,
		ActorHeader, "lead@example.com")
	require.Equal(t, http.StatusOK, status, string(body))
	var wr writeResponse
	require.NoError(t, json.Unmarshal(body, &wr))
	require.True(t, wr.OK)
	require.NotNil(t, wr.Backup)
	_, err := os.Stat(filepath.Join(h.writer.Store().Dir(), *wr.Backup))
	require.NoError(t, err, "backup of the prior document exists")

	status, body = h.do(t, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, status)
	doc, _, err := document.Decode(body)
	require.NoError(t, err)
	require.Len(t, doc.Allocations, 1)
	a := doc.Allocations[0]
	require.Equal(t, "A1", a.ID)
	require.Equal(t, "P1", a.ProjectID)
	require.Equal(t, "M1", a.ProductManagerID)
	require.Equal(t, 2025, a.Year)
	require.Equal(t, 11, a.Month)
	require.Equal(t, 1, a.Sprint)
	require.Equal(t, 50.0, a.AllocationPercentage)

	onDisk, err := os.ReadFile(h.writer.Store().Path())
	require.NoError(t, err)
	require.Equal(t, string(onDisk), string(body), "GET /data serves the canonical form")

	status, body = h.do(t, http.MethodGet, "/collections/allocationHistory", "")
	require.Equal(t, http.StatusOK, status)
	var hist []capacity.HistoryEntry
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist, 1)
	require.Equal(t, "lead@example.com", hist[0].ChangedBy)

	status, body = h.do(t, http.MethodGet, "/report/gaps", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(body))
}

func TestBackupsAndRestore(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 3; i++ {
		status, _ := h.do(t, http.MethodPost, "/teams", fmt.Sprintf(`[{"id":"T%d","name":"team %d"}]`, i, i))
		require.Equal(t, http.StatusOK, status)
	}
	status, body := h.do(t, http.MethodGet, "/backups", "")
	require.Equal(t, http.StatusOK, status)
	var names []string
	require.NoError(t, json.Unmarshal(body, &names))
	require.Len(t, names, 2)
	oldest := names[len(names)-1]

	status, body = h.do(t, http.MethodPost, "/restore/"+oldest, "")
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = h.do(t, http.MethodGet, "/collections/teams", "")
	require.Equal(t, http.StatusOK, status)
	var teams []capacity.Team
	require.NoError(t, json.Unmarshal(body, &teams))
	require.Len(t, teams, 1)
	require.Equal(t, "T1", teams[0].ID)

	status, body = h.do(t, http.MethodGet, "/backups", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &names))
	require.Len(t, names, 3, "restore backs up the current document first")

	status, body = h.do(t, http.MethodPost, "/restore/capacity.backup.1.json", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, CodeBackupNotFound, decodeError(t, body).Code)
}

func TestImportHubSpotEmail(t *testing.T) {
	h := newHarness(t)
	payload, err := json.Marshal(importRequest{EmailContent: "Company: Initech\nProject Name: Billing revamp\nAmount: 85k\nType: Software"})
	require.NoError(t, err)
	status, body := h.do(t, http.MethodPost, "/import/hubspot-email", string(payload))
	require.Equal(t, http.StatusCreated, status, string(body))
	var out struct {
		Project capacity.Project `json:"project"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "Initech", out.Project.CustomerName)
	require.Equal(t, "Billing revamp", out.Project.ProjectName)

	status, body = h.do(t, http.MethodPost, "/import/hubspot-email", `{"emailContent":"no fields here"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, CodeInvalidArgument, decodeError(t, body).Code)

	status, _ = h.do(t, http.MethodPost, "/import/hubspot-email", `{}`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestReplaceErrors(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodPost, "/widgets", `[]`)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, CodeUnknownCollection, decodeError(t, body).Code)

	status, body = h.do(t, http.MethodPost, "/allocations", `{"not":"an array"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, CodeInvalidArgument, decodeError(t, body).Code)

	status, _ = h.do(t, http.MethodPost, "/allocations",
		`[{"id":"A1","projectId":"P1","productManagerId":"M1","year":2025,"month":11,"sprint":1,"allocationPercentage":50}]`)
	require.Equal(t, http.StatusOK, status)
	status, body = h.do(t, http.MethodPost, "/allocationHistory", `[]`)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, CodeHistoryRewrite, decodeError(t, body).Code)
}

func TestCorruptDocumentIsReported(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.writer.Store().Dir(), 0o755))
	require.NoError(t, os.WriteFile(h.writer.Store().Path(), []byte(`{"projects":[`), 0o644))
	status, body := h.do(t, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, CodeCorruptDocument, decodeError(t, body).Code)
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		step   string
	}{
		{capacity.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument, ""},
		{&capacity.StepError{Step: capacity.StepSerialize, Err: capacity.ErrSerializationInvariant}, http.StatusInternalServerError, CodeSerializationInvariant, "serialize"},
		{capacity.IOError(capacity.StepReplace, errors.New("disk full")), http.StatusInternalServerError, CodeIOFailure, "replace"},
		{capacity.ErrSerializerClosed, http.StatusServiceUnavailable, CodeUnavailable, ""},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout, ""},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tc := range cases {
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error { return writeError(c, tc.err) })
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		var body ErrorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		require.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		require.Equal(t, tc.code, body.Error.Code)
		require.Equal(t, tc.step, body.Error.Step)
	}
}

func TestHealthMetricsAndWorkbook(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	status, _ = h.do(t, http.MethodPost, "/teams", `[{"id":"T1","name":"Core"}]`)
	require.Equal(t, http.StatusOK, status)

	status, body = h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `capplan_writer_writes_total{outcome="ok"} 1`)

	status, body = h.do(t, http.MethodGet, "/export/workbook", "")
	require.Equal(t, http.StatusOK, status)
	wb, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("teams")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
