package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/models"
	"github.com/rpupo63/portfolio-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const testToken = "test-admin-token"

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *docstore.MemoryStore
}

func newTestServer(t *testing.T, cfg map[string]string, maxUpload int64) *testServer {
	t.Helper()
	store := docstore.NewMemoryStore()
	sink := services.NewStoreActivitySink(database.NewActivityLogRepo(store))
	db := database.New(store, sink)

	files, err := services.NewLocalFileStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	svc := Services{
		Contact:        services.NewContactService(services.NewMemoryRateLimiter(3, time.Minute, 100), sink, nil),
		Files:          files,
		UploadMaxBytes: maxUpload,
		AdminToken:     testToken,
	}
	if cfg == nil {
		cfg = map[string]string{}
	}
	return &testServer{t: t, handler: newRouter(db, svc, withConfig(cfg)), store: store}
}

func (s *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(method, path, body string) *httptest.ResponseRecorder {
	return s.do(method, path, body, testToken)
}

func (s *testServer) createProject(slug string, published bool) string {
	s.t.Helper()
	body := `{"title":"Project ` + slug + `","slug":"` + slug + `","shortDesc":"short","tags":["go"],"published":` + boolString(published) + `}`
	rec := s.admin(http.MethodPost, "/api/admin/projects", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createdResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.ID
}

func (s *testServer) activity() []models.ActivityLog {
	s.t.Helper()
	raws, err := s.store.Collection(database.ActivityLogCollection).Find(context.Background(), docstore.Filter{}, docstore.FindOptions{})
	require.NoError(s.t, err)
	out := make([]models.ActivityLog, 0, len(raws))
	for _, raw := range raws {
		var entry models.ActivityLog
		require.NoError(s.t, bson.Unmarshal(raw, &entry))
		out = append(out, entry)
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)

	rec := s.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Portfolio API is running", decodeBody[map[string]string](t, rec)["message"])

	rec = s.do(http.MethodGet, "/schema", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[map[string][]string](t, rec)["collections"], "activitylog")

	s.createProject("alpha", true)
	rec = s.do(http.MethodGet, "/test", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	diag := decodeBody[diagnostics](t, rec)
	assert.Equal(t, "memory", diag.Database)
	assert.Equal(t, "Connected", diag.ConnectionStatus)
	assert.Contains(t, diag.Collections, "project")

	s.store.SetOffline(true)
	rec = s.do(http.MethodGet, "/test", "", "")
	require.Equal(t, http.StatusOK, rec.Code, "diagnostics never fail")
	diag = decodeBody[diagnostics](t, rec)
	assert.Equal(t, "Not Connected", diag.ConnectionStatus)
	assert.NotEmpty(t, diag.Error)
}

func TestAdminRequiresBearerToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)
	body := `{"title":"A","slug":"a","shortDesc":"s"}`

	for name, header := range map[string]string{
		"missing":      "",
		"wrong token":  "Bearer nope",
		"wrong scheme": "Basic " + testToken,
		"empty bearer": "Bearer ",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/projects", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
	assert.Empty(t, s.activity(), "rejected calls write nothing")

	rec := s.admin(http.MethodPost, "/api/admin/projects", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProjectLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, map[string]string{"ADMIN_IDENTITY": "owner@example.com"}, 0)

	draft := s.createProject("draft", false)
	rec := s.do(http.MethodGet, "/api/projects/draft", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unpublished projects are hidden")

	id := s.createProject("shipped", true)
	rec = s.do(http.MethodGet, "/api/projects/shipped", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	project := decodeBody[models.Project](t, rec)
	assert.Equal(t, id, project.ID.Hex())
	assert.Equal(t, []string{"go"}, project.Tags)
	assert.False(t, project.CreatedAt.IsZero())

	rec = s.do(http.MethodGet, "/api/projects/"+id, "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "ids work as lookup keys")

	rec = s.do(http.MethodGet, "/api/projects", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[database.Page[models.Project]](t, rec)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 20, page.Limit)

	rec = s.do(http.MethodGet, "/api/projects?published=true", "", "")
	assert.Equal(t, int64(1), decodeBody[database.Page[models.Project]](t, rec).Total)

	rec = s.admin(http.MethodPut, "/api/admin/projects/"+id,
		`{"title":"Renamed","slug":"shipped","shortDesc":"s","published":true,"orderIndex":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[okResponse](t, rec).OK)

	rec = s.admin(http.MethodGet, "/api/admin/projects/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeBody[models.Project](t, rec).Title)

	rec = s.admin(http.MethodDelete, "/api/admin/projects/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/projects/shipped", "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.admin(http.MethodGet, "/api/admin/projects/"+id, "").Code)
	rec = s.admin(http.MethodGet, "/api/admin/projects/"+id+"?include_deleted=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.Project](t, rec).Deleted)

	rec = s.admin(http.MethodGet, "/api/admin/projects?include_deleted=true", "")
	assert.Equal(t, int64(2), decodeBody[database.Page[models.Project]](t, rec).Total)

	rec = s.admin(http.MethodDelete, "/api/admin/projects/"+id+"?hard=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.admin(http.MethodGet, "/api/admin/projects/"+id+"?include_deleted=true", "").Code)
	assert.Equal(t, http.StatusNotFound, s.admin(http.MethodPut, "/api/admin/projects/"+id,
		`{"title":"A","slug":"shipped","shortDesc":"s"}`).Code)

	entries := s.activity()
	require.Len(t, entries, 5)
	actions := make([]models.ActivityAction, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
		assert.Equal(t, "owner@example.com", e.UserEmail)
		assert.Equal(t, database.ProjectCollection, e.Entity)
	}
	assert.Equal(t, []models.ActivityAction{
		models.ActionCreate, models.ActionCreate, models.ActionUpdate, models.ActionDelete, models.ActionDelete,
	}, actions)
	assert.Equal(t, draft, entries[0].EntityID)
	assert.Equal(t, true, entries[4].Metadata["hard"])
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)
	s.createProject("taken", true)

	rec := s.admin(http.MethodPost, "/api/admin/projects", `{"title":"Again","slug":"taken","shortDesc":"s"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.admin(http.MethodPost, "/api/admin/projects", `{"slug":"x","shortDesc":"s"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "title", errBody.Field)
	assert.Equal(t, "error", errBody.Status)

	rec = s.admin(http.MethodPost, "/api/admin/skills", `{"name":"Go","category":"Backend","level":101}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "level", decodeBody[ErrorResponse](t, rec).Field)

	rec = s.admin(http.MethodPost, "/api/admin/projects", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/projects", strings.NewReader("title=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = s.admin(http.MethodPut, "/api/admin/projects/not-an-id", `{"title":"A","slug":"a","shortDesc":"s"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "malformed ids are client errors")
	assert.Equal(t, "id", decodeBody[ErrorResponse](t, rec).Field)
	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodDelete, "/api/admin/skills/zzz", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodDelete, "/api/admin/skills/"+bson.NewObjectID().Hex()+"?hard=maybe", "").Code)

	for _, query := range []string{"page=0", "limit=0", "limit=101", "limit=ten", "published=sometimes", "page=92233720368547760&limit=100"} {
		rec = s.do(http.MethodGet, "/api/projects?"+query, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}

	s.store.SetOffline(true)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/projects", "", "").Code)
}

func TestPublicListsOnlyShowPublished(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)

	for _, body := range []string{
		`{"name":"Go","level":90,"category":"Backend"}`,
		`{"name":"React","level":80,"category":"Frontend"}`,
		`{"name":"Draft","level":10,"category":"Backend","published":false}`,
	} {
		require.Equal(t, http.StatusCreated, s.admin(http.MethodPost, "/api/admin/skills", body).Code)
	}

	rec := s.do(http.MethodGet, "/api/skills", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[database.Page[models.Skill]](t, rec)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 100, page.Limit)

	rec = s.do(http.MethodGet, "/api/skills?published=false", "", "")
	assert.Equal(t, int64(2), decodeBody[database.Page[models.Skill]](t, rec).Total, "published filter cannot widen public lists")

	rec = s.do(http.MethodGet, "/api/skills?category=Backend", "", "")
	page = decodeBody[database.Page[models.Skill]](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Go", page.Items[0].Name)

	rec = s.admin(http.MethodGet, "/api/admin/skills?published=false", "")
	assert.Equal(t, int64(1), decodeBody[database.Page[models.Skill]](t, rec).Total)

	require.Equal(t, http.StatusCreated, s.admin(http.MethodPost, "/api/admin/certificates",
		`{"title":"CKA","issuer":"CNCF","issueDate":"2024-05","tags":["k8s"],"published":true}`).Code)
	rec = s.do(http.MethodGet, "/api/certificates?tag=k8s&search=cncf", "", "")
	assert.Equal(t, int64(1), decodeBody[database.Page[models.Certificate]](t, rec).Total)

	require.Equal(t, http.StatusCreated, s.admin(http.MethodPost, "/api/admin/testimonials",
		`{"name":"Ava","quote":"Great work","published":true}`).Code)
	rec = s.do(http.MethodGet, "/api/testimonials?search=great", "", "")
	assert.Equal(t, int64(1), decodeBody[database.Page[models.Testimonial]](t, rec).Total)
}

func TestBulkPublishAndReorder(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)
	a := s.createProject("a", false)
	b := s.createProject("b", false)
	c := s.createProject("c", false)
	missing := bson.NewObjectID().Hex()

	rec := s.admin(http.MethodPost, "/api/admin/projects/bulk-publish",
		`{"ids":["`+a+`","`+c+`","`+missing+`"],"published":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodGet, "/api/projects?published=true", "", "")
	assert.Equal(t, int64(2), decodeBody[database.Page[models.Project]](t, rec).Total)

	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodPost, "/api/admin/projects/bulk-publish", `{"ids":["`+b+`"]}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodPost, "/api/admin/projects/bulk-publish", `{"ids":["bad"],"published":true}`).Code)

	rec = s.admin(http.MethodPost, "/api/admin/projects/reorder", `{"ordered_ids":["`+c+`","`+a+`","`+b+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for id, want := range map[string]int{c: 0, a: 1, b: 2} {
		rec = s.admin(http.MethodGet, "/api/admin/projects/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decodeBody[models.Project](t, rec).OrderIndex)
	}

	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodPost, "/api/admin/projects/reorder", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.admin(http.MethodPost, "/api/admin/certificates/reorder", `{"ordered_ids":[]}`).Code)
	assert.Len(t, s.activity(), 3, "bulk operations are not logged")
}

func TestContactRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 0)
	form := `{"name":"Ada","email":"ada@example.com","message":"Hello there"}`

	for i := 0; i < 3; i++ {
		rec := s.do(http.MethodPost, "/api/contact", form, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := s.do(http.MethodPost, "/api/contact", form, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "proxy headers are ignored unless trusted")

	rec = s.do(http.MethodPost, "/api/contact", `{"name":"Ada","email":"not-an-email","message":"x"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeBody[ErrorResponse](t, rec).Field)

	entries := s.activity()
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionContact, entries[0].Action)
	assert.Equal(t, "message", entries[0].Entity)
	assert.Equal(t, "-", entries[0].EntityID)
	assert.Equal(t, "ada@example.com", entries[0].UserEmail)
	assert.Equal(t, "Hello there", entries[0].Metadata["message"])
}

func TestContactTrustsProxyHeadersWhenConfigured(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, map[string]string{"TRUST_PROXY_HEADERS": "true"}, 0)
	form := `{"name":"Ada","email":"ada@example.com","message":"Hello"}`

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, send("203.0.113.7"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("198.51.100.4"))
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, 4096)

	upload := func(field, content, token string) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, field, "notes.txt", content)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
		req.Header.Set("Content-Type", contentType)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, upload("file", "hello", "").Code)

	rec := upload("file", "hello", testToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	url := decodeBody[uploadResponse](t, rec).URL
	require.True(t, strings.HasPrefix(url, "/uploads/"), url)
	assert.True(t, strings.HasSuffix(url, ".txt"), url)

	rec = s.do(http.MethodGet, url, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/uploads/", "", "").Code)

	assert.Equal(t, http.StatusRequestEntityTooLarge, upload("file", strings.Repeat("x", 8192), testToken).Code)
	assert.Equal(t, http.StatusBadRequest, upload("attachment", "hello", testToken).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, map[string]string{"ACCEPTED_ORIGINS": "https://site.example, https://admin.example"}, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/projects", nil)
	req.Header.Set("Origin", "https://admin.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://admin.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogInternalServerErrorsRecoversPanics(t *testing.T) {
	t.Parallel()
	handler := LogInternalServerErrors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", decodeBody[ErrorResponse](t, rec).Status)
}

func TestNewServerRequiresToken(t *testing.T) {
	t.Parallel()
	db := database.New(docstore.NewMemoryStore(), nil)
	_, err := NewServer(db, map[string]string{}, Services{})
	assert.Error(t, err)
}
