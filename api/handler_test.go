package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidscan/nid-ocr-service/internal/admission"
	"github.com/nidscan/nid-ocr-service/internal/auth"
	"github.com/nidscan/nid-ocr-service/internal/config"
	"github.com/nidscan/nid-ocr-service/internal/extract"
	"github.com/nidscan/nid-ocr-service/internal/models"
	"github.com/nidscan/nid-ocr-service/internal/ocr"
	"github.com/nidscan/nid-ocr-service/internal/pipeline"
	"github.com/nidscan/nid-ocr-service/internal/ratelimit"
	"github.com/nidscan/nid-ocr-service/internal/storage"
)

const testToken = "api-test-token"

type cardEngine struct{}

func (cardEngine) Name() string { return "fake" }

func (cardEngine) Recognize(ctx context.Context, img image.Image) (ocr.Transcript, error) {
	var tr ocr.Transcript
	for _, s := range []string{"NAME", "MD SAMIM MIA", "DATE OF BIRTH", "07 JUN 1972", "NID NO", "9116217028"} {
		tr.Fragments = append(tr.Fragments, ocr.Fragment{Text: s, Confidence: 0.9})
	}
	return tr, nil
}

func newTestRouter(t *testing.T, limit int) http.Handler {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.Token = testToken
	cfg.Auth.SecretKey = "api-test-secret"
	cfg.Upload.MaxBytes = 64 << 10
	cfg.RateLimit.Limit = limit

	a, err := auth.NewAuthenticator(cfg.Auth.Token, cfg.Auth.SecretKey, time.Hour)
	require.NoError(t, err)
	ledger := ratelimit.NewMemoryLedger(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	ctrl := admission.NewController(a, ledger, admission.Config{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
		Limit:        cfg.RateLimit.Limit,
		Window:       cfg.RateLimit.Window,
		KeyBy:        admission.KeyByToken,
	})
	ec := extract.DefaultConfig()
	ec.Now = func() time.Time { return time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC) }
	orch := pipeline.New(pipeline.Deps{
		Admission: ctrl,
		Scratch:   storage.NewScratch(t.TempDir(), nil),
		Engine:    cardEngine{},
		Extractor: extract.NewExtractor(ec),
	})
	return NewHandler(cfg, orch, a, ledger, nil).SetupRoutes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 8))
	img.Set(2, 2, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		fw, err := mw.CreateFormFile(field, "card.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.TokenHeader, testToken)
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestProcessImageMultipart(t *testing.T) {
	router := newTestRouter(t, 10)

	rec := serve(router, multipartRequest(t, "/process_image", "image", pngBytes(t), map[string]string{
		"Name":          "Md Samim Mia",
		"Date of Birth": "1972-06-07",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp models.NIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
	assert.Equal(t, "MD SAMIM MIA", resp.Name.Value)
	assert.Equal(t, "07 Jun 1972", resp.DateOfBirth.Value)
	assert.Equal(t, "9116217028", resp.IDNumber.Value)

	require.NotNil(t, resp.Comparison)
	assert.Equal(t, "compared", resp.Comparison.Status)
	assert.Equal(t, "match", resp.Comparison.Name.Status)
	assert.Equal(t, "match", resp.Comparison.DateOfBirth.Status)
	require.NotNil(t, resp.Comparison.IDNumber)
	assert.Equal(t, "no_comparison_data_provided", resp.Comparison.IDNumber.Status)
}

func TestProcessImageReferenceAfterImagePart(t *testing.T) {
	router := newTestRouter(t, 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "card.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("ID Number", "9116217028"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process_image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.TokenHeader, testToken)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.NIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Comparison.IDNumber)
	assert.Equal(t, "match", resp.Comparison.IDNumber.Status)
}

// countingReader records how many body bytes the server consumed
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestProcessImageUnauthenticatedBodyNotRead(t *testing.T) {
	router := newTestRouter(t, 10)

	t.Run("raw", func(t *testing.T) {
		body := &countingReader{r: bytes.NewReader(make([]byte, 32<<10))}
		req := httptest.NewRequest(http.MethodPost, "/process_image", body)
		req.Header.Set("Content-Type", "image/png")
		req.Header.Set(auth.TokenHeader, "wrong")

		rec := serve(router, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, body.n)
	})

	t.Run("multipart", func(t *testing.T) {
		src := multipartRequest(t, "/process_image", "image", pngBytes(t), map[string]string{"Name": "X"})
		body := &countingReader{r: src.Body}
		req := httptest.NewRequest(http.MethodPost, "/process_image", body)
		req.Header.Set("Content-Type", src.Header.Get("Content-Type"))

		rec := serve(router, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, body.n)
	})
}

func TestProcessImageFileFieldAndAlias(t *testing.T) {
	router := newTestRouter(t, 10)

	rec := serve(router, multipartRequest(t, "/api/process-image", "file", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]interface{}{"status": "no_comparison_data_provided"}, resp["comparison"])
}

func TestProcessImageRawBody(t *testing.T) {
	router := newTestRouter(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/process_image?name=KARIM+UDDIN", bytes.NewReader(pngBytes(t)))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.NIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mismatch", resp.Comparison.Name.Status)
}

func TestProcessImageRejections(t *testing.T) {
	router := newTestRouter(t, 10)
	large := append(pngBytes(t), make([]byte, 70<<10)...)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		code   string
	}{
		{"no token", func() *http.Request {
			r := multipartRequest(t, "/process_image", "image", pngBytes(t), nil)
			r.Header.Del(auth.TokenHeader)
			return r
		}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong token before size", func() *http.Request {
			r := multipartRequest(t, "/process_image", "image", large, nil)
			r.Header.Set(auth.TokenHeader, "nope")
			return r
		}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing image", func() *http.Request {
			return multipartRequest(t, "/process_image", "image", nil, map[string]string{"Name": "X"})
		}, http.StatusBadRequest, "MISSING_UPLOAD"},
		{"too large", func() *http.Request {
			return multipartRequest(t, "/process_image", "image", large, nil)
		}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"not an image", func() *http.Request {
			return multipartRequest(t, "/process_image", "image", []byte("%PDF-1.4 fake"), nil)
		}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{"no body", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/process_image", strings.NewReader(`{"a":1}`))
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set(auth.TokenHeader, testToken)
			return r
		}, http.StatusBadRequest, "MISSING_UPLOAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.req())
			assert.Equal(t, tt.status, rec.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestProcessImageRateLimited(t *testing.T) {
	router := newTestRouter(t, 2)

	for i := 0; i < 2; i++ {
		rec := serve(router, multipartRequest(t, "/process_image", "image", pngBytes(t), nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(router, multipartRequest(t, "/process_image", "image", pngBytes(t), nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Details, "client")
	assert.EqualValues(t, 2, resp.Details["limit"])
}

func TestTokenExchangeThenProcess(t *testing.T) {
	router := newTestRouter(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(`{"client_id":"branch-7"}`))
	req.Header.Set(auth.TokenHeader, testToken)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)

	upload := multipartRequest(t, "/process_image", "image", pngBytes(t), nil)
	upload.Header.Del(auth.TokenHeader)
	upload.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = serve(router, upload)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExchangedTokensShareBudget(t *testing.T) {
	router := newTestRouter(t, 3)

	mint := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(`{"client_id":"`+client+`"}`))
		req.Header.Set(auth.TokenHeader, testToken)
		return serve(router, req)
	}
	process := func(token string) int {
		req := multipartRequest(t, "/process_image", "image", pngBytes(t), nil)
		req.Header.Del(auth.TokenHeader)
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(router, req).Code
	}

	var tokens []string
	for _, client := range []string{"kiosk-1", "kiosk-2"} {
		rec := mint(client)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var tok models.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
		tokens = append(tokens, tok.Token)
	}

	assert.Equal(t, http.StatusOK, process(tokens[0]))
	assert.Equal(t, http.StatusTooManyRequests, process(tokens[1]))
	assert.Equal(t, http.StatusTooManyRequests, mint("kiosk-3").Code)
}

func TestHealthAndIndex(t *testing.T) {
	router := newTestRouter(t, 10)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "fake", health.Engine.Version)
	assert.Equal(t, "memory", health.RateLimit.Version)
	assert.False(t, health.Database.Available)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NID Extractor API is running.")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, 10)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Endpoint not found"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/process_image", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Method not allowed"}`, rec.Body.String())
}

func TestRecovererReturnsJSON500(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor("STORAGE_FAILED"))
	assert.Equal(t, http.StatusBadRequest, statusFor("MISSING_UPLOAD"))
}
