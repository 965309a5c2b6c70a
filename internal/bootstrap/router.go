package bootstrap

import (
	"log/slog"
	"slices"
	"time"

	httpapi "github.com/ecoscore-finance/ecoscore-backend/internal/api/http"
	"github.com/ecoscore-finance/ecoscore-backend/internal/api/http/middleware"
	ecohttp "github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/http"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	ServiceName     string
	Version         string
	Logger          *slog.Logger
	CORSOrigins     []string
	ManualRateLimit float64
	ManualRateBurst int
	Health          httpapi.HealthDeps
	Loans           *ecohttp.Handler
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(dep.Logger))
	r.Use(cors.New(corsConfig(dep.CORSOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Health)
	healthHandler.RegisterRoutes(r)

	if dep.Loans != nil {
		api := r.Group("/api")
		dep.Loans.Register(api, middleware.RateLimit(dep.ManualRateLimit, dep.ManualRateBurst))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
