package testutil

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fxxsj/work-order-sub001/internal/cache"
	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/service"
)

const JWTSecret = "test-secret"

// TestEnv 测试环境：内存库 + 完整服务栈
type TestEnv struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Services *service.Services
	Config   *config.Config
	T        *testing.T
}

// NewEnv 建一个独立的内存 SQLite 环境，每个测试用例互不影响
func NewEnv(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&entity.Customer{},
		&entity.Department{},
		&entity.Process{},
		&entity.Operator{},
		&entity.Artwork{},
		&entity.Die{},
		&entity.FoilingPlate{},
		&entity.EmbossingPlate{},
		&entity.Material{},
		&entity.Product{},
		&entity.ProductStockLog{},
		&entity.WorkOrder{},
		&entity.WorkOrderProcess{},
		&entity.WorkOrderProduct{},
		&entity.WorkOrderMaterial{},
		&entity.WorkOrderArtwork{},
		&entity.WorkOrderDie{},
		&entity.WorkOrderFoilingPlate{},
		&entity.WorkOrderEmbossingPlate{},
		&entity.WorkOrderTask{},
		&entity.TaskLog{},
		&entity.ProcessLog{},
		&entity.TaskAssignmentRule{},
		&entity.Notification{},
		&entity.WorkOrderApprovalLog{},
		&entity.SystemConfig{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: JWTSecret, AccessTokenExpire: time.Hour},
		Workshop: config.WorkshopConfig{
			MaxActiveTasksPerOperator: 10,
			StrictStockReduce:         false,
			DeadlineWarningDays:       3,
		},
		RateLimit: config.RateLimitConfig{
			AnonPerHour: 100, UserPerHour: 1000, ApprovalPerHour: 10, ExportPerHour: 20,
		},
	}

	zapLogger := zap.NewNop()
	repos := repository.NewRepositories(db)
	notifier := notify.NewNotifier(repos.Notification, notify.NopPublisher{}, zapLogger)
	services := service.NewServices(service.Deps{
		DB:       db,
		Repos:    repos,
		Cache:    cache.NewMemoryCache(),
		Notifier: notifier,
		Config:   cfg,
		Logger:   zapLogger,
	})

	return &TestEnv{DB: db, Repos: repos, Services: services, Config: cfg, T: t}
}

// Actor 构造一个测试用户
func Actor(userID string, superuser bool, departments []string, capabilities ...string) *middleware.Actor {
	return &middleware.Actor{
		UserID:        userID,
		Name:          userID,
		IsSuperuser:   superuser,
		DepartmentIDs: departments,
		Capabilities:  capabilities,
	}
}

// MintToken 按当前中间件的声明格式签发 JWT
func MintToken(t *testing.T, actor *middleware.Actor) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID:        actor.UserID,
		Name:          actor.Name,
		IsSuperuser:   actor.IsSuperuser,
		DepartmentIDs: actor.DepartmentIDs,
		Capabilities:  actor.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// DoRequest 对路由发一个 JSON 请求
func DoRequest(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ParseResponse 解析标准响应包的 data 字段
func ParseResponse(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (body: %s)", err, w.Body.String())
	}
	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
	}
}
