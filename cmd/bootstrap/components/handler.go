package components

import (
	"coupon-settlement/internal/handler"
	"coupon-settlement/internal/handler/api"
	"coupon-settlement/internal/handler/middleware"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewSettlementHandler,
		api.NewStatsHandler,
		middleware.NewAuthMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)
