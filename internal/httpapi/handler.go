package httpapi

import (
	"net/http"
	"strconv"

	"hashmine/pkg/db/pagination"
	"hashmine/pkg/errutil"
	"hashmine/pkg/middleware"
	"hashmine/services/balance"
	"hashmine/services/contract"
	"hashmine/services/deposit"
	"hashmine/services/ledger"
	"hashmine/services/plan"
	"hashmine/services/pricefeed"
	"hashmine/services/task"
	"hashmine/services/withdrawal"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	plans       *plan.Service
	contracts   *contract.Service
	deposits    *deposit.Service
	ledger      *ledger.Service
	balances    *balance.Service
	withdrawals *withdrawal.Service
	prices      *pricefeed.Feed
	tasks       *task.Service
}

type Params struct {
	fx.In
	Plans       *plan.Service
	Contracts   *contract.Service
	Deposits    *deposit.Service
	Ledger      *ledger.Service
	Balances    *balance.Service
	Withdrawals *withdrawal.Service
	Prices      *pricefeed.Feed
	Tasks       *task.Service `optional:"true"`
}

func NewHandler(p Params) *Handler {
	return &Handler{
		plans:       p.Plans,
		contracts:   p.Contracts,
		deposits:    p.Deposits,
		ledger:      p.Ledger,
		balances:    p.Balances,
		withdrawals: p.Withdrawals,
		prices:      p.Prices,
		tasks:       p.Tasks,
	}
}

type data struct {
	Data     any                  `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type activeRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func badBody(c *gin.Context, err error) {
	c.Error(errutil.BadRequest("invalid request body", err))
}

// Plans

func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context(), false)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: plans})
}

func (h *Handler) GetPlan(c *gin.Context) {
	p, err := h.plans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: p})
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var req plan.CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	p, err := h.plans.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, data{Data: p})
}

func (h *Handler) SetPlanActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	p, err := h.plans.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: p})
}

// Deposits

func (h *Handler) SubmitDeposit(c *gin.Context) {
	var req deposit.SubmitParams
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	req.UserID = middleware.GetUserID(c)

	d, err := h.deposits.Submit(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, data{Data: d})
}

func (h *Handler) ListDeposits(c *gin.Context) {
	deposits, err := h.deposits.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: deposits})
}

func (h *Handler) ListPendingDeposits(c *gin.Context) {
	deposits, err := h.deposits.ListPending(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: deposits})
}

func (h *Handler) ApproveDeposit(c *gin.Context) {
	d, err := h.deposits.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: d})
}

func (h *Handler) RejectDeposit(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	d, err := h.deposits.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: d})
}

// Contracts and earnings

func (h *Handler) ListContracts(c *gin.Context) {
	contracts, err := h.contracts.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: contracts})
}

func (h *Handler) CancelContract(c *gin.Context) {
	ct, err := h.contracts.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: ct})
}

// GetBalance returns every currency, or one with ?currency=.
func (h *Handler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	if currency := c.Query("currency"); currency != "" {
		view, err := h.balances.BalanceOf(ctx, userID, currency)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, data{Data: view})
		return
	}

	views, err := h.balances.Balance(ctx, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: views})
}

func (h *Handler) ListLedger(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, info, err := h.ledger.ListByUser(c.Request.Context(), middleware.GetUserID(c), page)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: entries, PageInfo: info})
}

// Withdrawals

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req withdrawal.RequestParams
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	req.UserID = middleware.GetUserID(c)

	w, err := h.withdrawals.Request(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, data{Data: w})
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	ws, err := h.withdrawals.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: ws})
}

func (h *Handler) WithdrawalQueue(c *gin.Context) {
	status := withdrawal.Status(c.DefaultQuery("status", string(withdrawal.StatusPending)))
	ws, err := h.withdrawals.ListByStatus(c.Request.Context(), status)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: ws})
}

func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	w, err := h.withdrawals.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: w})
}

func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	var req withdrawal.CompleteParams
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	w, err := h.withdrawals.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: w})
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	w, err := h.withdrawals.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: w})
}

// Prices

func (h *Handler) GetPrice(c *gin.Context) {
	q, err := h.prices.Price(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: q})
}

// Tasks

func (h *Handler) ListTaskRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.tasks.ListRuns(c.Request.Context(), c.Query("name"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, data{Data: runs})
}

func (h *Handler) TriggerTask(c *gin.Context) {
	id, err := h.tasks.Trigger(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, data{Data: gin.H{"task_id": id}})
}
