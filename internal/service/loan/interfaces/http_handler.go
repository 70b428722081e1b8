package interfaces

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/loan/application"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

// FeedServer 把请求升级为实时推送连接。
type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, adminID string) error
}

// LoanHandler 封装了贷款申请相关的 HTTP 处理器
type LoanHandler struct {
	service *application.LoanApplicationService
	feed    FeedServer
}

func NewLoanHandler(service *application.LoanApplicationService, feed FeedServer) *LoanHandler {
	return &LoanHandler{service: service, feed: feed}
}

// RegisterRoutes 注册 /loans 下的所有路由。wsAuth 允许通过查询参数传递令牌。
func (h *LoanHandler) RegisterRoutes(api *gin.RouterGroup, authMW, wsAuth gin.HandlerFunc) {
	loans := api.Group("/loans")
	loans.GET("/flagged/ws", wsAuth, h.handleFlagFeed)

	loans.Use(authMW)
	loans.POST("/applications/", h.handleCreate)
	loans.GET("/applications/", h.handleList)
	loans.GET("/applications/:id/", h.handleRetrieve)
	loans.POST("/applications/:id/approve/", h.handleApprove)
	loans.POST("/applications/:id/reject/", h.handleReject)
	loans.POST("/applications/:id/flag/", h.handleFlag)
	loans.GET("/flagged/", h.handleListFlagged)
}

type createLoanBody struct {
	AmountRequested *decimal.Decimal `json:"amount_requested"`
	Purpose         string           `json:"purpose"`
}

type flagBody struct {
	Reason string `json:"reason"`
}

func (h *LoanHandler) handleCreate(c *gin.Context) {
	p := principal(c)

	var body createLoanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if body.AmountRequested == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_requested: This field is required."})
		return
	}
	if strings.TrimSpace(body.Purpose) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purpose: This field is required."})
		return
	}

	resp, err := h.service.CreateLoan(c.Request.Context(), &application.CreateLoanRequest{
		UserID:  p.UserID,
		Amount:  *body.AmountRequested,
		Purpose: body.Purpose,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *LoanHandler) handleList(c *gin.Context) {
	page, err := h.service.ListLoans(c.Request.Context(), principal(c), listRequest(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LoanHandler) handleListFlagged(c *gin.Context) {
	page, err := h.service.ListFlagged(c.Request.Context(), principal(c), listRequest(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *LoanHandler) handleRetrieve(c *gin.Context) {
	resp, err := h.service.GetLoan(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LoanHandler) handleApprove(c *gin.Context) {
	resp, err := h.service.Approve(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LoanHandler) handleReject(c *gin.Context) {
	resp, err := h.service.Reject(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleFlag 请求体可以为空，此时使用默认原因。
func (h *LoanHandler) handleFlag(c *gin.Context) {
	var body flagBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.service.Flag(c.Request.Context(), principal(c), c.Param("id"), strings.TrimSpace(body.Reason))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LoanHandler) handleFlagFeed(c *gin.Context) {
	p := principal(c)
	if !p.IsStaff {
		writeError(c, domain.ErrForbidden)
		return
	}
	if err := h.feed.Serve(c.Writer, c.Request, p.UserID); err != nil {
		// Upgrade 失败时已经写过响应
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("flag feed upgrade failed")
	}
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	return p
}

func listRequest(c *gin.Context) application.ListLoansRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return application.ListLoansRequest{
		Status:   c.Query("status"),
		Ordering: c.Query("ordering"),
		Page:     pagination.NewParams(page, size),
	}
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidLoan), errors.Is(err, domain.ErrNoReasons):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrLoanNotFound), errors.Is(err, domain.ErrApplicantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, port.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
