package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TsutomuTakai/pp-case-api/internal/api"
	"github.com/TsutomuTakai/pp-case-api/internal/cache"
	"github.com/TsutomuTakai/pp-case-api/internal/config"
	"github.com/TsutomuTakai/pp-case-api/internal/database/models"
	"github.com/TsutomuTakai/pp-case-api/internal/database/repository"
	"github.com/TsutomuTakai/pp-case-api/internal/database/service"
	"github.com/TsutomuTakai/pp-case-api/internal/handler"
	"github.com/TsutomuTakai/pp-case-api/internal/middleware"
)

// bcrypt hash of "password"
const passwordHash = "$2a$10$92IXUNpkjO0rOQ5byMi.Ye4oKoEa3Ro9llC/.og/at2.uheWG/igi"

const jwtSecret = "test-secret"

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	mr     *miniredis.Miniredis
}

// setupTestEnv wires the full request gate against an in-memory SQLite
// database and a miniredis instance, mirroring the production wiring.
func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	redisPort, err := strconv.ParseInt(mr.Port(), 10, 64)
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:       jwtSecret,
		TokenExpiration: 3600,
		DefaultPerPage:  10,
		MaxPerPage:      100,
		ListingCacheTTL: 60,
		RedisHost:       mr.Host(),
		RedisPort:       redisPort,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cacheStore := cache.NewForTesting(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg, logger)

	limiter, err := middleware.NewRateLimiter(cfg, logger)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	authService := service.NewAuthService(userRepo, cfg, logger)
	userService := service.NewUserService(userRepo, cfg, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	userHandler := handler.NewUserHandler(userService, cacheStore, logger)
	authMiddleware := middleware.NewAuthMiddleware(authService, logger)

	router := api.SetupRouter(authHandler, userHandler, authMiddleware, limiter, cacheStore, logger)

	t.Cleanup(func() {
		limiter.Close()
		cacheStore.Close()
		mr.Close()
	})

	return &testEnv{router: router, db: db, mr: mr}
}

// seedUser inserts a user that can log in with the password "password"
func (e *testEnv) seedUser(t *testing.T, name, email string) uint {
	user := &models.User{Name: name, Email: email, PasswordHash: passwordHash}
	require.NoError(t, e.db.Create(user).Error)
	return user.ID
}

func (e *testEnv) seedUsers(t *testing.T, count int) {
	for i := 1; i <= count; i++ {
		e.seedUser(t, fmt.Sprintf("User %02d", i), fmt.Sprintf("user%02d@example.com", i))
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	w := e.request(t, http.MethodPost, "/login", gin.H{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUser(t, "Test User", "test@example.com")

	t.Run("valid credentials return a token", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/login", gin.H{"email": "test@example.com", "password": "password"}, "")
		assert.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.NotEmpty(t, body["access_token"])
		assert.Equal(t, "Bearer", body["token_type"])
		assert.Equal(t, float64(3600), body["expires_in"])
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrongPassword := env.request(t, http.MethodPost, "/login", gin.H{"email": "test@example.com", "password": "nope"}, "")
		unknownEmail := env.request(t, http.MethodPost, "/login", gin.H{"email": "ghost@example.com", "password": "password"}, "")

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
		assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
		assert.Contains(t, wrongPassword.Body.String(), "Invalid email or password")
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/login", gin.H{"email": "test@example.com"}, "")
		assert.Equal(t, 422, w.Code)
	})
}

func TestCreateUser(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUser(t, "Test User", "test@example.com")
	token := env.login(t, "test@example.com", "password")

	t.Run("requires authentication", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/v1/users", gin.H{"name": "N", "email": "n@example.com", "password": "secret123"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Authorization header required")
	})

	t.Run("creates and never exposes the password", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/v1/users", gin.H{"name": "João Silva", "email": "joao@example.com", "password": "joaopass"}, token)
		assert.Equal(t, http.StatusCreated, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "João Silva", body["name"])
		assert.Equal(t, "joao@example.com", body["email"])
		assert.NotZero(t, body["id"])
		assert.NotContains(t, body, "password")
		assert.NotContains(t, body, "password_hash")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/v1/users", gin.H{"name": "Other", "email": "test@example.com", "password": "secret123"}, token)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "already exists")

		var count int64
		require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", "test@example.com").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("invalid email rejected before persistence", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/v1/users", gin.H{"name": "Bad", "email": "not-an-email", "password": "secret123"}, token)
		assert.Equal(t, 422, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid input data")
	})

	t.Run("malformed body is a plain bad request", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/users", bytes.NewBufferString("{not json"))
		req.RemoteAddr = "192.0.2.9:1234"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListUsers_Pagination(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUsers(t, 14)

	w := env.request(t, http.MethodGet, "/v1/users?page=2&per_page=5", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Len(t, body["items"], 5)
	assert.Equal(t, float64(14), body["total_items"])
	assert.Equal(t, float64(3), body["total_pages"])
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, true, body["has_next"])
	assert.Equal(t, true, body["has_prev"])

	// Page past the end is empty, not an error
	w = env.request(t, http.MethodGet, "/v1/users?page=9&per_page=5", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Empty(t, body["items"])
	assert.Equal(t, float64(14), body["total_items"])
}

func TestListUsers_FilterAndSort(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUser(t, "Fulano de Tal", "fulano@example.com")
	env.seedUser(t, "Ciclana Souza", "ciclana@example.com")
	env.seedUser(t, "Test User", "primeiro@example.com")

	t.Run("name filter", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/v1/users?name=fulano", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		items := body["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "Fulano de Tal", items[0].(map[string]any)["name"])
	})

	t.Run("sort by email descending", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/v1/users?sort_by=email&order=desc", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)

		items := decodeBody(t, w)["items"].([]any)
		require.Len(t, items, 3)
		emails := make([]string, len(items))
		for i, item := range items {
			emails[i] = item.(map[string]any)["email"].(string)
		}
		assert.Equal(t, []string{"primeiro@example.com", "fulano@example.com", "ciclana@example.com"}, emails)
	})

	t.Run("invalid sort field rejected", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/v1/users?sort_by=password_hash", nil, "")
		assert.Equal(t, 422, w.Code)
	})
}

func TestUserLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUser(t, "Test User", "test@example.com")
	targetID := env.seedUser(t, "Target", "target@example.com")
	token := env.login(t, "test@example.com", "password")

	basePath := fmt.Sprintf("/v1/users/%d", targetID)

	t.Run("get requires auth", func(t *testing.T) {
		w := env.request(t, http.MethodGet, basePath, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := env.request(t, http.MethodGet, basePath, nil, token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Target", decodeBody(t, w)["name"])
	})

	t.Run("partial update keeps email", func(t *testing.T) {
		w := env.request(t, http.MethodPut, basePath, gin.H{"name": "Renamed"}, token)
		assert.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "Renamed", body["name"])
		assert.Equal(t, "target@example.com", body["email"])
	})

	t.Run("update to a taken email conflicts", func(t *testing.T) {
		w := env.request(t, http.MethodPut, basePath, gin.H{"email": "test@example.com"}, token)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("delete then get returns 404", func(t *testing.T) {
		w := env.request(t, http.MethodDelete, basePath, nil, token)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())

		w = env.request(t, http.MethodGet, basePath, nil, token)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "User not found")
	})

	t.Run("update of a missing user returns 404", func(t *testing.T) {
		w := env.request(t, http.MethodPut, "/v1/users/9999", gin.H{"name": "Ghost"}, token)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-numeric id rejected", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/v1/users/abc", nil, token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTokenFailures(t *testing.T) {
	env := setupTestEnv(t)
	userID := env.seedUser(t, "Test User", "test@example.com")

	t.Run("expired token", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": strconv.FormatUint(uint64(userID), 10),
			"exp": time.Now().Add(-time.Hour).Unix(),
			"iat": time.Now().Add(-2 * time.Hour).Unix(),
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
		require.NoError(t, err)

		w := env.request(t, http.MethodGet, fmt.Sprintf("/v1/users/%d", userID), nil, expired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token has expired")
	})

	t.Run("garbage token", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/v1/users/%d", userID), nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid token")
	})

	t.Run("token for a deleted user", func(t *testing.T) {
		ghostID := env.seedUser(t, "Ghost", "ghost@example.com")
		token := env.login(t, "ghost@example.com", "password")
		require.NoError(t, env.db.Delete(&models.User{}, ghostID).Error)

		w := env.request(t, http.MethodGet, fmt.Sprintf("/v1/users/%d", userID), nil, token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestListingCacheInvalidation(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUser(t, "Test User", "test@example.com")
	token := env.login(t, "test@example.com", "password")

	first := env.request(t, http.MethodGet, "/v1/users?per_page=5", nil, "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, float64(1), decodeBody(t, first)["total_items"])

	second := env.request(t, http.MethodGet, "/v1/users?per_page=5", nil, "")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	// A mutation must drop the cached pages so reads see the new row
	created := env.request(t, http.MethodPost, "/v1/users", gin.H{"name": "New", "email": "new@example.com", "password": "secret123"}, token)
	require.Equal(t, http.StatusCreated, created.Code)

	third := env.request(t, http.MethodGet, "/v1/users?per_page=5", nil, "")
	assert.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, float64(2), decodeBody(t, third)["total_items"])
}

func TestListingRateLimit(t *testing.T) {
	env := setupTestEnv(t)
	env.seedUsers(t, 3)

	// Listing quota is 10 per minute per client address
	for i := 0; i < 10; i++ {
		w := env.request(t, http.MethodGet, "/v1/users", nil, "")
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	w := env.request(t, http.MethodGet, "/v1/users", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")

	// The window expiring restores service
	env.mr.FastForward(61 * time.Second)
	w = env.request(t, http.MethodGet, "/v1/users", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
