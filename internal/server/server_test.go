// Copyright Dasan Software Lab, 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dasanlab/bookcheck/pkg/types"
)

type stubResolver struct {
	res types.Resolution
	err error
}

func (r *stubResolver) ResolveISBN(ctx context.Context, title, author string, threshold float64) (types.Resolution, error) {
	return r.res, r.err
}

type stubSearcher struct {
	dec types.Decision
}

func (s *stubSearcher) Resolve(ctx context.Context, isbn, school string, partitions []string) types.Decision {
	return s.dec
}

func newTestServer(t *testing.T, res types.Resolution, dec types.Decision) *Server {
	t.Helper()
	var cfg types.PipelineConfig
	cfg.Catalog.Threshold = 0.6
	cfg.Server.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.Server.OutputDir = filepath.Join(t.TempDir(), "outputs")
	return New(cfg, &stubResolver{res: res}, &stubSearcher{dec: dec}, newTestStore(t), zap.NewNop())
}

// writeInputSheet builds a minimal input spreadsheet with n data rows.
func writeInputSheet(t *testing.T, n int) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"학교명", "도서명", "저자", "출판사"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, f.SetCellValue("Sheet1", cell, h))
	}
	for r := 0; r < n; r++ {
		values := []string{"금남초등학교", "수학의 정석", "홍성대", "성지출판"}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func uploadSheet(t *testing.T, srv *Server, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		FileID string `json:"file_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.FileID)
	return body.FileID
}

func postJSON(t *testing.T, srv *Server, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	_, err = rec.Body.ReadFrom(resp.Body)
	require.NoError(t, err)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "bookcheck", body["service"])
}

func TestRegions(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/regions", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Regions    map[string]string `json:"regions"`
		Partitions []string          `json:"partitions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Partitions, 17)
	assert.Equal(t, "J10", body.Regions["경기"])
	assert.Equal(t, "G10", body.Regions["대전"])
}

func TestUploadReturnsPreview(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})
	path := writeInputSheet(t, 7)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "input.xlsx")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		FileID  string      `json:"file_id"`
		Rows    int         `json:"rows"`
		Preview []types.Row `json:"preview"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.FileID)
	assert.Equal(t, 7, body.Rows)
	assert.Len(t, body.Preview, 5, "preview is capped")
	assert.Equal(t, "금남초등학교", body.Preview[0].School)
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "input.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a spreadsheet"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestVerifyRunsJobToCompletion(t *testing.T) {
	srv := newTestServer(t,
		types.Resolution{ISBN13: "9788983920997"},
		types.Decision{Exists: true, MatchCount: 2, MatchedSchool: "금남초등학교"})
	fileID := uploadSheet(t, srv, writeInputSheet(t, 3))

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/api/verify/"+fileID, nil))
	require.NoError(t, err)
	require.Equal(t, 202, resp.StatusCode)

	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, 3, job.TotalRows)

	// The job runs detached; poll until it settles.
	deadline := time.Now().Add(5 * time.Second)
	for {
		statusResp, err := srv.App().Test(httptest.NewRequest("GET", "/api/jobs/"+job.ID, nil))
		require.NoError(t, err)
		require.Equal(t, 200, statusResp.StatusCode)
		require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&job))
		if job.State == JobCompleted || job.State == JobFailed {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not settle in time")
		time.Sleep(25 * time.Millisecond)
	}

	require.Equal(t, JobCompleted, job.State)
	assert.Equal(t, 3, job.DoneRows)

	dlResp, err := srv.App().Test(httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/download", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, dlResp.StatusCode)
	assert.Contains(t, dlResp.Header.Get("Content-Disposition"), "bookcheck-results.xlsx")
}

func TestVerifyUnknownFile(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/api/verify/no-such-file", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestJobStatusUnknown(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/jobs/no-such-job", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDownloadBeforeCompletion(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	job, err := srv.jobs.Create(context.Background(), "uploads/x.xlsx", 1)
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/jobs/"+job.ID+"/download", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestCatalogSearch(t *testing.T) {
	srv := newTestServer(t, types.Resolution{ISBN13: "9788983920997"}, types.Decision{})

	rec := postJSON(t, srv, "/api/search/catalog", map[string]string{
		"title":  "수학의 정석",
		"author": "홍성대",
	})
	require.Equal(t, 200, rec.Code)

	var res types.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "9788983920997", res.ISBN13)
}

func TestCatalogSearchReportsFailure(t *testing.T) {
	srv := newTestServer(t, types.Resolution{Kind: types.KindNoResults, Reason: "no results"}, types.Decision{})

	rec := postJSON(t, srv, "/api/search/catalog", map[string]string{"title": "없는 책"})
	require.Equal(t, 200, rec.Code)

	var res types.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.ISBN13)
	assert.Equal(t, types.KindNoResults, res.Kind)
}

func TestHoldingsSearchRequiresISBNAndSchool(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	rec := postJSON(t, srv, "/api/search/holdings", map[string]string{"school": "금남초등학교"})
	assert.Equal(t, 400, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "required"))
}

func TestHoldingsSearch(t *testing.T) {
	srv := newTestServer(t, types.Resolution{},
		types.Decision{Exists: true, MatchCount: 1, MatchedSchool: "금남초등학교"})

	rec := postJSON(t, srv, "/api/search/holdings", map[string]string{
		"isbn":   "9788983920997",
		"school": "금남초",
		"region": "대전",
	})
	require.Equal(t, 200, rec.Code)

	var dec types.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	assert.True(t, dec.Exists)
	assert.Equal(t, "금남초등학교", dec.MatchedSchool)
}

func TestBookSearchCombinesStages(t *testing.T) {
	srv := newTestServer(t,
		types.Resolution{ISBN13: "9788983920997"},
		types.Decision{Exists: true, MatchCount: 2, MatchedSchool: "금남초등학교"})

	rec := postJSON(t, srv, "/api/search/book", map[string]string{
		"school": "금남초등학교",
		"title":  "수학의 정석",
		"author": "홍성대",
		"region": "대전",
	})
	require.Equal(t, 200, rec.Code)

	var record types.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "9788983920997", record.ISBN13)
	assert.True(t, record.Exists)
	assert.Equal(t, "금남초등학교", record.MatchedSchool)
}

func TestBookSearchRequiresSchool(t *testing.T) {
	srv := newTestServer(t, types.Resolution{}, types.Decision{})

	rec := postJSON(t, srv, "/api/search/book", map[string]string{"title": "수학의 정석"})
	assert.Equal(t, 400, rec.Code)
}
