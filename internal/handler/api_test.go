package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hatewatch/internal/ingest"
	"hatewatch/internal/metrics"
	"hatewatch/internal/middleware"
	"hatewatch/internal/ml_client"
	"hatewatch/internal/models"
	"hatewatch/internal/progress"
	"hatewatch/internal/service"
)

type fakeUploads struct {
	err      error
	filename string
	month    string
	content  string
	progress map[string]models.Progress
	latest   string
}

func (f *fakeUploads) Upload(_ context.Context, filename, month string, content io.Reader) (*models.IngestionBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(content)
	f.filename, f.month, f.content = filename, month, string(data)
	return &models.IngestionBatch{ID: "batch-1", Source: filename, Period: "2024-06"}, nil
}

func (f *fakeUploads) Progress(_ context.Context, id string) (models.Progress, error) {
	p, ok := f.progress[id]
	if !ok {
		return models.Progress{}, progress.ErrNotFound
	}
	return p, nil
}

func (f *fakeUploads) LatestProgress(ctx context.Context) (models.Progress, error) {
	if f.latest == "" {
		return models.Progress{}, progress.ErrNotFound
	}
	return f.Progress(ctx, f.latest)
}

type fakeReports struct {
	periods []string
	err     error
	tweets  []models.Tweet
}

func (f *fakeReports) Periods(context.Context) ([]string, error) { return f.periods, f.err }

func (f *fakeReports) Overview(_ context.Context, periods []string) (*models.Overview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Overview{Periods: periods, TotalTweets: 4, TotalHate: 1, HateRate: 25}, nil
}

func (f *fakeReports) Compare(_ context.Context, first, second string) (*models.Comparison, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Comparison{First: models.PeriodRates{Month: first}, Second: models.PeriodRates{Month: second}}, nil
}

func (f *fakeReports) Export(_ context.Context, _ string, fn func(models.Tweet) error) error {
	for _, t := range f.tweets {
		if err := fn(t); err != nil {
			return err
		}
	}
	return f.err
}

type fakeClassifier struct{ err error }

func (f fakeClassifier) ClassifyOne(_ context.Context, text string) (models.Label, []string, string, error) {
	if f.err != nil {
		return "", nil, "", f.err
	}
	if strings.Contains(strings.ToLower(text), "babi") {
		return models.LabelHate, []string{models.CategoryOtherHate}, strings.ToLower(text), nil
	}
	return models.LabelNonHate, nil, strings.ToLower(text), nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeModel struct {
	resp *ml_client.HealthResponse
	err  error
}

func (f fakeModel) HealthCheck(context.Context) (*ml_client.HealthResponse, error) {
	return f.resp, f.err
}

type testDeps struct {
	uploads *fakeUploads
	reports *fakeReports
	cls     fakeClassifier
	db      fakePinger
	ml      fakeModel
	opts    Options
}

func newDeps() *testDeps {
	return &testDeps{
		uploads: &fakeUploads{progress: map[string]models.Progress{}},
		reports: &fakeReports{},
		ml:      fakeModel{resp: &ml_client.HealthResponse{Status: "healthy", Stage1Loaded: true, Stage2Loaded: true}},
	}
}

func (d *testDeps) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(d.uploads, d.reports, d.cls, d.db, d.ml, d.opts, zap.NewNop()).RegisterRoutes(r)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func uploadRequest(t *testing.T, filename, month, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("month", month))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_Accepted(t *testing.T) {
	d := newDeps()
	w := do(d.router(), uploadRequest(t, "tweets.csv", "June 2024", "tweet\nhello\n"))

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "batch-1", body["batch_id"])
	assert.Equal(t, ingest.StatusQueued, body["status"])
	assert.Equal(t, "/api/v1/uploads/batch-1/progress", body["progress_url"])
	assert.Equal(t, "tweets.csv", d.uploads.filename)
	assert.Equal(t, "June 2024", d.uploads.month)
	assert.Equal(t, "tweet\nhello\n", d.uploads.content)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		err      error
		want     int
	}{
		{"missing file", "", nil, http.StatusBadRequest},
		{"invalid file", "tweets.txt", service.ErrInvalidFile, http.StatusBadRequest},
		{"invalid period", "tweets.csv", models.ErrInvalidPeriod, http.StatusBadRequest},
		{"queue full", "tweets.csv", ingest.ErrQueueFull, http.StatusServiceUnavailable},
		{"queue closed", "tweets.csv", ingest.ErrQueueClosed, http.StatusServiceUnavailable},
		{"disk error", "tweets.csv", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.uploads.err = tt.err
			w := do(d.router(), uploadRequest(t, tt.filename, "2024-06", "tweet\n"))
			assert.Equal(t, tt.want, w.Code)
			assert.NotContains(t, w.Body.String(), "disk full")
		})
	}
}

func TestGetProgress(t *testing.T) {
	d := newDeps()
	d.uploads.progress["b1"] = models.Progress{BatchID: "b1", Percent: 25, Status: "Processing chunk 1...", State: models.StateProcessingChunk}
	r := d.router()

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/b1/progress", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(25), body["percent"])
	assert.Equal(t, "processing_chunk", body["state"])

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/missing/progress", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLatestProgress(t *testing.T) {
	d := newDeps()
	r := d.router()

	w := do(r, httptest.NewRequest(http.MethodGet, "/upload_progress", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"percent":0,"status":"idle"}`, w.Body.String())

	d.uploads.progress["b1"] = models.Progress{BatchID: "b1", Percent: 100, Status: "Processing complete."}
	d.uploads.latest = "b1"
	w = do(r, httptest.NewRequest(http.MethodGet, "/upload_progress", nil))
	assert.JSONEq(t, `{"percent":100,"status":"Processing complete."}`, w.Body.String())
}

func TestClassify(t *testing.T) {
	d := newDeps()
	r := d.router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"text":"Babi go away"}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"label":"hate","categories":["Other_Hate"],"cleaned_text":"babi go away"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"text":"sunny days"}`))
	w = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"label":"non-hate","categories":[],"cleaned_text":"sunny days"}`, w.Body.String())
}

func TestClassify_BadInput(t *testing.T) {
	r := newDeps().router()
	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{"text":42}`, `{"text":null}`, `{}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(body))
			w := do(r, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestClassify_BackendFailure(t *testing.T) {
	d := newDeps()
	d.cls = fakeClassifier{err: errors.New("sidecar down")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"text":"hello"}`))
	w := do(d.router(), req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sidecar down")
}

func TestListPeriods(t *testing.T) {
	d := newDeps()
	w := do(d.router(), httptest.NewRequest(http.MethodGet, "/api/v1/periods", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"periods":[]}`, w.Body.String())

	d.reports.periods = []string{"2024-05", "2024-06"}
	w = do(d.router(), httptest.NewRequest(http.MethodGet, "/api/v1/periods", nil))
	assert.JSONEq(t, `{"periods":["2024-05","2024-06"]}`, w.Body.String())
}

func TestReports(t *testing.T) {
	d := newDeps()
	r := d.router()

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/reports/overview?period=2024-05&period=2024-06", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{"2024-05", "2024-06"}, body["periods"])

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/reports/compare?first=2024-05&second=2024-06", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "2024-05", body["first"].(map[string]any)["month"])
}

func TestReports_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidPeriod, http.StatusBadRequest},
		{service.ErrSamePeriod, http.StatusBadRequest},
		{service.ErrNoData, http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			d := newDeps()
			d.reports.err = tt.err
			w := do(d.router(), httptest.NewRequest(http.MethodGet, "/api/v1/reports/compare?first=a&second=b", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestExportCSV(t *testing.T) {
	d := newDeps()
	d.reports.tweets = []models.Tweet{
		{Tweet: "Hello, world", CleanTweet: "hello, world", Hate: models.LabelNonHate, Month: "2024-06", FileName: "a.csv"},
		{Tweet: "babi", CleanTweet: "babi", Hate: models.LabelHate, HateTypes: "Race,Religion", Month: "2024-06", FileName: "a.csv"},
	}

	w := do(d.router(), httptest.NewRequest(http.MethodGet, "/api/v1/tweets/export?period=June+2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "tweets_2024-06.csv")

	want := "tweet,clean_tweet,hate,hate_types,month,file_name\n" +
		"\"Hello, world\",\"hello, world\",non-hate,,2024-06,a.csv\n" +
		"babi,babi,hate,\"Race,Religion\",2024-06,a.csv\n"
	assert.Equal(t, want, w.Body.String())

	w = do(d.router(), httptest.NewRequest(http.MethodGet, "/api/v1/tweets/export?period=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		w := do(newDeps().router(), httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", decode(t, w)["status"])
	})

	t.Run("sidecar unreachable", func(t *testing.T) {
		d := newDeps()
		d.ml = fakeModel{err: errors.New("connection refused")}
		w := do(d.router(), httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unreachable", body["ml"])
	})

	t.Run("model not loaded", func(t *testing.T) {
		d := newDeps()
		d.ml = fakeModel{resp: &ml_client.HealthResponse{Status: "loading", Stage1Loaded: true}}
		w := do(d.router(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, "degraded", decode(t, w)["status"])
	})

	t.Run("database down", func(t *testing.T) {
		d := newDeps()
		d.db = fakePinger{err: errors.New("no route")}
		w := do(d.router(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestMetricsRoute(t *testing.T) {
	d := newDeps()
	m := metrics.New()
	m.RecordLabel(string(models.LabelHate))
	d.opts.Metrics = m.Handler()

	w := do(d.router(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hatewatch_")
}

func TestGuardedRoutes(t *testing.T) {
	secret := []byte("test-secret")
	d := newDeps()
	d.opts.Auth = middleware.AuthMiddleware(secret, zap.NewNop())
	d.uploads.progress["b1"] = models.Progress{BatchID: "b1"}
	r := d.router()

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/b1/progress", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/periods", nil))
	assert.Equal(t, http.StatusOK, w.Code, "reports stay public")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Username: "analyst",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/b1/progress", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
