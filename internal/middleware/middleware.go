package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger 日志中间件
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("request_id", c.GetString("request_id")),
		}

		if userID, exists := c.Get("user_id"); exists {
			fields = append(fields, zap.String("user_id", userID.(string)))
		}

		if status >= 500 {
			logger.Error("Server error", fields...)
		} else if status >= 400 {
			logger.Warn("Client error", fields...)
		} else {
			logger.Info("Request", fields...)
		}
	}
}

// CORS 跨域中间件，允许来源取自配置
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Request.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// 能力标识
const (
	CapChangeWorkOrder       = "change_workorder"
	CapApproveWorkOrder      = "approve_workorder"
	CapEditApprovedWorkOrder = "edit_approved_workorder"
	CapDispatchTask          = "dispatch_task"
	CapForceComplete         = "force_complete"
	CapManageRules           = "manage_rules"
	CapExportData            = "export_data"
	CapRepairData            = "repair_data"
)

// JWTClaims JWT claims
type JWTClaims struct {
	UserID        string   `json:"uid"`
	Name          string   `json:"name"`
	IsSuperuser   bool     `json:"su"`
	DepartmentIDs []string `json:"depts"`
	Capabilities  []string `json:"caps"`
	jwt.RegisteredClaims
}

// Actor 当前请求的操作者身份
type Actor struct {
	UserID        string
	Name          string
	IsSuperuser   bool
	DepartmentIDs []string
	Capabilities  []string
}

// Can 是否具备指定能力，超级用户放行一切
func (a *Actor) Can(capability string) bool {
	if a.IsSuperuser {
		return true
	}
	for _, c := range a.Capabilities {
		if c == capability || c == "*" {
			return true
		}
	}
	return false
}

// InDepartment 是否属于指定部门
func (a *Actor) InDepartment(departmentID string) bool {
	if a.IsSuperuser {
		return true
	}
	for _, d := range a.DepartmentIDs {
		if d == departmentID {
			return true
		}
	}
	return false
}

// GetActor 提取认证后的操作者，未认证返回 nil
func GetActor(c *gin.Context) *Actor {
	v, exists := c.Get("actor")
	if !exists {
		return nil
	}
	actor, ok := v.(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// JWTAuth JWT认证中间件
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// 先尝试从 Authorization header 获取
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// 回退到 query param（SSE 等场景使用）
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40100,
				"message": "Authorization is required",
			})
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})

		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40102,
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
			c.Set("user_id", claims.UserID)
			c.Set("user_name", claims.Name)
			c.Set("actor", &Actor{
				UserID:        claims.UserID,
				Name:          claims.Name,
				IsSuperuser:   claims.IsSuperuser,
				DepartmentIDs: claims.DepartmentIDs,
				Capabilities:  claims.Capabilities,
			})
			c.Next()
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40103,
				"message": "Invalid token claims",
			})
			c.Abort()
			return
		}
	}
}

// RequireCapability 能力检查中间件
func RequireCapability(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if actor == nil {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    40300,
				"message": "No identity found",
			})
			c.Abort()
			return
		}

		if !actor.Can(capability) {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    40302,
				"message": "Permission denied: " + capability,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
