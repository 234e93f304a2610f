package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"coupon-settlement/internal/handler/api"
	"coupon-settlement/internal/handler/middleware"
	"coupon-settlement/internal/pkg/config"
	"coupon-settlement/internal/pkg/jwt"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

func NewRouter(engine *gin.Engine, cfg config.Config, settlementHandler *api.SettlementHandler, statsHandler *api.StatsHandler, authMiddleware *middleware.AuthMiddleware) {
	setupMiddleware(engine, cfg)
	setupRoutes(engine, settlementHandler, statsHandler, authMiddleware)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.NewLogger(cfg.Log).LoggingMiddleware())
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(engine *gin.Engine, settlementHandler *api.SettlementHandler, statsHandler *api.StatsHandler, authMiddleware *middleware.AuthMiddleware) {
	engine.GET("/health", healthCheck)

	if gin.Mode() == gin.DebugMode {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group("/api")
	{
		settlement := apiGroup.Group("/settlement")
		settlement.Use(authMiddleware.RequireAuth())
		{
			addRoutes(settlement, []route{
				{Method: http.MethodPost, Path: "/validate", Handler: settlementHandler.Validate},
				{Method: http.MethodPost, Path: "/reserve", Handler: settlementHandler.Reserve},
				{Method: http.MethodPost, Path: "/commit", Handler: settlementHandler.Commit},
				{Method: http.MethodPost, Path: "/release", Handler: settlementHandler.Release},
				{Method: http.MethodGet, Path: "/reservations/:id", Handler: settlementHandler.GetReservation},
			})
		}

		coupons := apiGroup.Group("/coupons")
		coupons.Use(authMiddleware.RequireAuth())
		{
			addRoutes(coupons, []route{
				{Method: http.MethodGet, Path: "/:code/stats", Handler: statsHandler.CouponStats,
					Mw: []gin.HandlerFunc{authMiddleware.RequireRole(jwt.RoleAdmin)}},
				{Method: http.MethodGet, Path: "/:code/stats/me", Handler: statsHandler.MyStats},
			})
		}
	}
}

// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
