package interfaces

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/user/application"
	"github.com/Abbracx/loan-be/internal/service/user/domain"
)

// UserHandler 负责注册、登录令牌与用户查询接口
type UserHandler struct {
	service *application.UserApplicationService
}

func NewUserHandler(service *application.UserApplicationService) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterRoutes 注册与令牌相关的接口不需要认证。
func (h *UserHandler) RegisterRoutes(api *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := api.Group("/auth")
	a.POST("/users/", h.handleRegister)
	a.POST("/jwt/create/", h.handleLogin)
	a.POST("/jwt/refresh/", h.handleRefresh)
	a.POST("/jwt/verify/", h.handleVerify)

	users := a.Group("/users", authMW)
	users.GET("/", h.handleList)
	users.GET("/me/", h.handleMe)
	users.GET("/:id/", h.handleRetrieve)
}

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshBody struct {
	Refresh string `json:"refresh" binding:"required"`
}

type verifyBody struct {
	Token string `json:"token" binding:"required"`
}

func (h *UserHandler) handleRegister(c *gin.Context) {
	var req application.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *UserHandler) handleLogin(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	pair, err := h.service.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *UserHandler) handleRefresh(c *gin.Context) {
	var body refreshBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh: This field is required."})
		return
	}

	access, err := h.service.Refresh(c.Request.Context(), body.Refresh)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (h *UserHandler) handleVerify(c *gin.Context) {
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token: This field is required."})
		return
	}

	if err := h.service.Verify(c.Request.Context(), body.Token); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *UserHandler) handleMe(c *gin.Context) {
	resp, err := h.service.Me(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) handleList(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))

	resp, err := h.service.List(c.Request.Context(), principal(c), application.ListUsersRequest{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     pagination.NewParams(page, size),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) handleRetrieve(c *gin.Context) {
	resp, err := h.service.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	return p
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrDuplicateUser),
		errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrAccountInactive):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountLocked), errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is invalid or expired"})
		return
	default:
		logger.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
