package httpapi

import (
	"hashmine/pkg/config"
	"hashmine/pkg/health"
	"hashmine/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(r *gin.Engine, cfg *config.Config, h *Handler, hs health.HealthService) {
	r.GET("/healthz", hs.Liveness)
	r.GET("/readyz", hs.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/plans", h.ListPlans)
	v1.GET("/plans/:id", h.GetPlan)
	v1.GET("/prices/:symbol", h.GetPrice)

	user := v1.Group("", middleware.UserID())
	user.POST("/deposits", h.SubmitDeposit)
	user.GET("/deposits", h.ListDeposits)
	user.GET("/contracts", h.ListContracts)
	user.GET("/balance", h.GetBalance)
	user.GET("/ledger", h.ListLedger)
	user.POST("/withdrawals", h.RequestWithdrawal)
	user.GET("/withdrawals", h.ListWithdrawals)

	admin := v1.Group("/admin", middleware.AdminKey(cfg.Admin.APIKey))
	admin.POST("/plans", h.CreatePlan)
	admin.PATCH("/plans/:id", h.SetPlanActive)
	admin.GET("/deposits", h.ListPendingDeposits)
	admin.POST("/deposits/:id/approve", h.ApproveDeposit)
	admin.POST("/deposits/:id/reject", h.RejectDeposit)
	admin.POST("/contracts/:id/cancel", h.CancelContract)
	admin.GET("/withdrawals", h.WithdrawalQueue)
	admin.POST("/withdrawals/:id/process", h.ProcessWithdrawal)
	admin.POST("/withdrawals/:id/complete", h.CompleteWithdrawal)
	admin.POST("/withdrawals/:id/reject", h.RejectWithdrawal)

	if h.tasks != nil {
		admin.GET("/tasks/runs", h.ListTaskRuns)
		admin.POST("/tasks/:name/run", h.TriggerTask)
	}
}
