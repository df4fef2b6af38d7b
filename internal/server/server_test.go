package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/config"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/files"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/bunbase/bunbase/internal/rules"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "admin-password-1"

type testApp struct {
	*App
	router     http.Handler
	admin      *models.Admin
	adminToken string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	require.NoError(t, bunx.RunMigrations(ctx, db))

	cfg := &config.Config{
		DBPath:      ":memory:",
		Port:        config.DefaultPort,
		JWTSecret:   "test-secret",
		StorageDir:  t.TempDir(),
		Development: true,
	}

	registry := schema.NewRegistry(db, repository.NewBunCollectionRepository(db), repository.NewBunFieldRepository(db))
	hookRegistry := hooks.NewRegistry()
	recordService := records.NewService(db, registry, hookRegistry)
	admins := repository.NewBunAdminRepository(db)
	store, err := files.NewStore(cfg.StorageDir)
	require.NoError(t, err)
	evaluator, err := rules.NewEvaluator()
	require.NoError(t, err)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)
	resolver := auth.NewResolver(issuer, admins, recordService)

	app := NewApp(AppOptions{
		Cfg:      cfg,
		DB:       db,
		Registry: registry,
		Records:  recordService,
		Hooks:    hookRegistry,
		Files:    store,
		Auth:     resolver,
		Rules:    evaluator,
		Admins:   admins,
	})
	t.Cleanup(app.Close)

	admin := seedAdmin(t, admins)
	token, err := issuer.Issue(admin.ID, auth.TokenKindAdmin, "")
	require.NoError(t, err)

	return &testApp{
		App:        app,
		router:     NewRouter(RouterOptions{App: app}),
		admin:      admin,
		adminToken: token,
	}
}

func seedAdmin(t *testing.T, admins repository.AdminRepository) *models.Admin {
	t.Helper()
	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	now := models.NowUTC()
	admin := &models.Admin{
		ID:           uuid.NewString(),
		Email:        "root@example.com",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, admins.Create(context.Background(), admin))
	return admin
}

// do runs one request through the router. A non-nil body is JSON-encoded.
func (ta *testApp) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func strptr(s string) *string { return &s }

// createPosts provisions a posts collection; public rules make list and
// view available without a token, mutations stay admin-only.
func (ta *testApp) createPosts(t *testing.T, public bool) {
	t.Helper()
	ruleSet := schema.RuleSet{}
	if public {
		ruleSet.ListRule = strptr("views >= 0")
		ruleSet.ViewRule = strptr("views >= 0")
	}
	_, err := ta.Registry.CreateCollection(context.Background(), "posts", models.CollectionTypeBase, []schema.FieldSpec{
		{Name: "title", Type: models.FieldTypeText, Required: true},
		{Name: "views", Type: models.FieldTypeNumber},
	}, ruleSet)
	require.NoError(t, err)
}

func (ta *testApp) seedPost(t *testing.T, title string, views int) string {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/api/collections/posts/records", ta.adminToken,
		map[string]any{"title": title, "views": views})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["id"].(string)
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAdminAuthFlow(t *testing.T) {
	ta := newTestApp(t)

	t.Run("wrong credentials", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/admin/auth/login", "",
			map[string]string{"email": ta.admin.Email, "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/admin/auth/login", "",
			map[string]string{"email": "ghost@example.com", "password": adminPassword})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	var token string
	t.Run("login", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/admin/auth/login", "",
			map[string]string{"email": ta.admin.Email, "password": adminPassword})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		token, _ = body["token"].(string)
		require.NotEmpty(t, token)
	})

	t.Run("me", func(t *testing.T) {
		rec := ta.do(t, http.MethodGet, "/admin/auth/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ta.admin.Email, decodeBody(t, rec)["email"])
	})

	t.Run("password change", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/admin/auth/password", token,
			map[string]string{"oldPassword": "wrong", "password": "new-password-1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = ta.do(t, http.MethodPost, "/admin/auth/password", token,
			map[string]string{"oldPassword": adminPassword, "password": "short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ta.do(t, http.MethodPost, "/admin/auth/password", token,
			map[string]string{"oldPassword": adminPassword, "password": "new-password-1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ta.do(t, http.MethodPost, "/admin/auth/login", "",
			map[string]string{"email": ta.admin.Email, "password": "new-password-1"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(t, http.MethodGet, "/admin/collections", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(t, http.MethodGet, "/admin/collections", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCollectionLifecycleOverHTTP(t *testing.T) {
	ta := newTestApp(t)

	create := map[string]any{
		"name": "posts",
		"type": "base",
		"fields": []map[string]any{
			{"name": "title", "type": "text", "required": true},
		},
		"listRule": "title != ''",
	}
	rec := ta.do(t, http.MethodPost, "/admin/collections", ta.adminToken, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "posts", body["name"])
	assert.Len(t, body["fields"], 1)

	rec = ta.do(t, http.MethodPost, "/admin/collections", ta.adminToken, create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(t, http.MethodGet, "/admin/collections", ta.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1)

	rec = ta.do(t, http.MethodPatch, "/admin/collections/posts", ta.adminToken,
		map[string]any{"viewRule": "title != ''"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "title != ''", decodeBody(t, rec)["viewRule"])

	rec = ta.do(t, http.MethodPatch, "/admin/collections/posts", ta.adminToken,
		map[string]any{"name": "articles"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "renames are refused")

	rec = ta.do(t, http.MethodPost, "/admin/collections/posts/fields", ta.adminToken,
		map[string]any{"name": "views", "type": "number"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody(t, rec)["fields"], 2)

	rec = ta.do(t, http.MethodDelete, "/admin/collections/posts/fields/views", ta.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ta.do(t, http.MethodDelete, "/admin/collections/posts", ta.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ta.do(t, http.MethodGet, "/admin/collections/posts", ta.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordCRUDOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, false)

	// Nil rules lock every operation to admins.
	rec := ta.do(t, http.MethodPost, "/api/collections/posts/records", "",
		map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	id := ta.seedPost(t, "hello", 3)

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records/"+id, ta.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decodeBody(t, rec)["title"])

	rec = ta.do(t, http.MethodPatch, "/api/collections/posts/records/"+id, ta.adminToken,
		map[string]any{"views": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7.0, decodeBody(t, rec)["views"])

	rec = ta.do(t, http.MethodDelete, "/api/collections/posts/records/"+id, ta.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records/"+id, ta.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ta.do(t, http.MethodPost, "/api/collections/posts/records", ta.adminToken,
		map[string]any{"views": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "required field missing")
}

func TestListFilterSortPagination(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, true)

	for _, views := range []int{1, 5, 10, 50, 100} {
		ta.seedPost(t, "p", views)
	}

	rec := ta.do(t, http.MethodGet, "/api/collections/posts/records?views>=10&sort=-views&perPage=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, 3.0, body["totalItems"])
	assert.Equal(t, 2.0, body["totalPages"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, 100.0, items[0].(map[string]any)["views"])
	assert.Equal(t, 50.0, items[1].(map[string]any)["views"])

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records?views>=10&sort=-views&perPage=2&page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items = decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, 10.0, items[0].(map[string]any)["views"])
}

func TestLikeFilterMatchesLiteralPercent(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, true)
	ta.seedPost(t, "50% off", 1)
	ta.seedPost(t, "500 items", 2)

	rec := ta.do(t, http.MethodGet, "/api/collections/posts/records?title~=50%25", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, decodeBody(t, rec)["totalItems"])

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records?title~=50", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decodeBody(t, rec)["totalItems"])
}

func TestFilterTextFieldWithBooleanShapedValue(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, true)
	ta.seedPost(t, "true", 1)
	ta.seedPost(t, "50", 2)

	// Values that parse as booleans or numbers still bind as text when
	// the target column is text.
	rec := ta.do(t, http.MethodGet, "/api/collections/posts/records?title=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1.0, decodeBody(t, rec)["totalItems"])

	rec = ta.do(t, http.MethodGet, "/api/collections/posts/records?title=50", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["totalItems"])
}

func TestHookCancellationOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, false)

	ta.Hooks.On(hooks.EventBeforeCreate, func(ctx *hooks.Context, next func() error) error {
		return apperrors.Validation("blocked")
	}, "posts")

	rec := ta.do(t, http.MethodPost, "/api/collections/posts/records", ta.adminToken,
		map[string]any{"title": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "blocked", decodeBody(t, rec)["error"])

	var count int
	require.NoError(t, ta.DB.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM "posts"`).Scan(&count))
	assert.Zero(t, count)
}

func TestRealtimeSubscribe(t *testing.T) {
	ta := newTestApp(t)

	t.Run("missing clientId", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/api/realtime", "",
			map[string]any{"subscriptions": []string{"posts/*"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown client", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/api/realtime", "",
			map[string]any{"clientId": "ghost", "subscriptions": []string{"posts/*"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("session hijack guard", func(t *testing.T) {
		other := seedAdmin2(t, ta)
		otherToken, err := ta.Auth.Issuer().Issue(other.ID, auth.TokenKindAdmin, "")
		require.NoError(t, err)

		client := ta.Hub.Register()
		defer ta.Hub.Remove(client.ID)

		rec := ta.do(t, http.MethodPost, "/api/realtime", ta.adminToken,
			map[string]any{"clientId": client.ID, "subscriptions": []string{"posts/*"}})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = ta.do(t, http.MethodPost, "/api/realtime", otherToken,
			map[string]any{"clientId": client.ID, "subscriptions": []string{"posts/*"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func seedAdmin2(t *testing.T, ta *testApp) *models.Admin {
	t.Helper()
	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	now := models.NowUTC()
	admin := &models.Admin{
		ID:           uuid.NewString(),
		Email:        "second@example.com",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, ta.Admins.Create(context.Background(), admin))
	return admin
}

func TestRealtimeBroadcastOnMutation(t *testing.T) {
	ta := newTestApp(t)
	ta.createPosts(t, true)

	client := ta.Hub.Register()
	defer ta.Hub.Remove(client.ID)
	rec := ta.do(t, http.MethodPost, "/api/realtime", "",
		map[string]any{"clientId": client.ID, "subscriptions": []string{"posts/*"}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	ta.seedPost(t, "hello", 1)

	select {
	case frame := <-client.Send:
		text := string(frame)
		assert.Contains(t, text, `"action":"create"`)
		assert.Contains(t, text, `"title":"hello"`)
	default:
		t.Fatal("no broadcast received")
	}
}

func TestAuthWithPassword(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	_, err := ta.Registry.CreateCollection(ctx, "users", models.CollectionTypeAuth, nil, schema.RuleSet{})
	require.NoError(t, err)

	rec := ta.do(t, http.MethodPost, "/api/collections/users/records", ta.adminToken,
		map[string]any{"email": "ada@example.com", "password": "user-password-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.NotContains(t, created, "password_hash", "hash never leaves the API")

	t.Run("wrong password", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/api/collections/users/auth-with-password", "",
			map[string]string{"email": "ada@example.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		rec := ta.do(t, http.MethodPost, "/api/collections/users/auth-with-password", "",
			map[string]string{"email": "Ada@Example.com", "password": "user-password-1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		token, _ := body["token"].(string)
		require.NotEmpty(t, token)
		record := body["record"].(map[string]any)
		assert.Equal(t, "ada@example.com", record["email"])
		assert.NotContains(t, record, "password_hash")

		// A user token does not open the admin surface.
		adminRec := ta.do(t, http.MethodGet, "/admin/collections", token, nil)
		assert.Equal(t, http.StatusUnauthorized, adminRec.Code)
	})

	t.Run("base collection refuses", func(t *testing.T) {
		ta.createPosts(t, false)
		rec := ta.do(t, http.MethodPost, "/api/collections/posts/auth-with-password", "",
			map[string]string{"email": "x@y.z", "password": "p"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOwnershipRules(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	_, err := ta.Registry.CreateCollection(ctx, "users", models.CollectionTypeAuth, nil, schema.RuleSet{})
	require.NoError(t, err)
	_, err = ta.Registry.CreateCollection(ctx, "notes", models.CollectionTypeBase, []schema.FieldSpec{
		{Name: "body", Type: models.FieldTypeText},
		{Name: "owner", Type: models.FieldTypeRelation, Options: models.OptionsMap{"target": "users"}},
	}, schema.RuleSet{
		ListRule:   strptr("owner = @request.auth.id"),
		ViewRule:   strptr("owner = @request.auth.id"),
		CreateRule: strptr("@request.auth.id != ''"),
		UpdateRule: strptr("owner = @request.auth.id"),
	})
	require.NoError(t, err)

	userToken := func(email string) string {
		rec := ta.do(t, http.MethodPost, "/api/collections/users/records", ta.adminToken,
			map[string]any{"email": email, "password": "user-password-1"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		rec = ta.do(t, http.MethodPost, "/api/collections/users/auth-with-password", "",
			map[string]string{"email": email, "password": "user-password-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeBody(t, rec)["token"].(string)
	}
	tokenA := userToken("a@example.com")
	tokenB := userToken("b@example.com")

	idOf := func(token string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		principal, err := ta.Auth.Resolve(context.Background(), req)
		require.NoError(t, err)
		return principal.ID()
	}
	ownerA := idOf(tokenA)

	rec := ta.do(t, http.MethodPost, "/api/collections/notes/records", "",
		map[string]any{"body": "x", "owner": ownerA})
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous create is denied")

	rec = ta.do(t, http.MethodPost, "/api/collections/notes/records", tokenA,
		map[string]any{"body": "mine", "owner": ownerA})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	noteID := decodeBody(t, rec)["id"].(string)

	rec = ta.do(t, http.MethodGet, "/api/collections/notes/records/"+noteID, tokenA, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/collections/notes/records/"+noteID, tokenB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "strangers cannot view")

	rec = ta.do(t, http.MethodPatch, "/api/collections/notes/records/"+noteID, tokenB,
		map[string]any{"body": "hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/collections/notes/records", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["totalItems"])

	rec = ta.do(t, http.MethodGet, "/api/collections/notes/records", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeBody(t, rec)["totalItems"], "list is filtered per owner")

	rec = ta.do(t, http.MethodDelete, "/api/collections/notes/records/"+noteID, tokenA, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "nil delete rule stays admin-only")
}

func TestFileUploadLifecycle(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	_, err := ta.Registry.CreateCollection(ctx, "docs", models.CollectionTypeBase, []schema.FieldSpec{
		{Name: "title", Type: models.FieldTypeText},
		{Name: "attachments", Type: models.FieldTypeFile, Options: models.OptionsMap{"maxFiles": 3}},
	}, schema.RuleSet{})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "report"))
	for _, name := range []string{"one photo.png", "two.png", "three.png"} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="attachments"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("png bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/collections/docs/records", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ta.adminToken)
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	id := body["id"].(string)
	names := body["attachments"].([]any)
	require.Len(t, names, 3)

	recordDir := filepath.Join(ta.Files.Root(), "docs", id)
	entries, err := os.ReadDir(recordDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	download := ta.do(t, http.MethodGet, "/api/files/docs/"+id+"/"+names[0].(string), ta.adminToken, nil)
	require.Equal(t, http.StatusOK, download.Code)
	assert.Equal(t, "image/png", download.Header().Get("Content-Type"))
	assert.Equal(t, "png bytes", download.Body.String())

	anon := ta.do(t, http.MethodGet, "/api/files/docs/"+id+"/"+names[0].(string), "", nil)
	assert.Equal(t, http.StatusForbidden, anon.Code, "nil view rule keeps files admin-only")

	del := ta.do(t, http.MethodDelete, "/api/collections/docs/records/"+id, ta.adminToken, nil)
	require.Equal(t, http.StatusNoContent, del.Code)

	_, statErr := os.Stat(recordDir)
	assert.True(t, os.IsNotExist(statErr), "record files are removed with the record")
}

func TestDeleteCollectionRemovesFiles(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	_, err := ta.Registry.CreateCollection(ctx, "docs", models.CollectionTypeBase, []schema.FieldSpec{
		{Name: "title", Type: models.FieldTypeText},
	}, schema.RuleSet{})
	require.NoError(t, err)
	require.NoError(t, ta.Files.Save("docs", "r1", "a.txt", bytes.NewReader([]byte("x"))))

	rec := ta.do(t, http.MethodDelete, "/admin/collections/docs", ta.adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, statErr := os.Stat(filepath.Join(ta.Files.Root(), "docs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdminUIPlaceholder(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodGet, "/_", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bunbase")
}
