package account

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	accountService "github.com/jwalitptl/orderpay/internal/service/account"
	"github.com/jwalitptl/orderpay/pkg/httputil"
)

type Handler struct {
	service *accountService.Service
}

func NewHandler(service *accountService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	{
		accounts.POST("", h.CreateAccount)
		accounts.GET("/:user_id", h.GetAccount)
		accounts.POST("/:user_id/deposit", h.Deposit)
	}
}

type createAccountRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.Response{Success: false, Error: &httputil.Error{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		}})
		return
	}

	account, err := h.service.CreateAccount(c.Request.Context(), req.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, account)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.Response{Success: false, Error: &httputil.Error{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		}})
		return
	}

	account, err := h.service.Deposit(c.Request.Context(), c.Param("user_id"), req.Amount)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, account)
}

func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.service.GetAccount(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, account)
}
