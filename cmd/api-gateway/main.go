package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/theme-match-api/api/swagger"
	"github.com/noah-isme/theme-match-api/internal/handler"
	"github.com/noah-isme/theme-match-api/internal/middleware"
	"github.com/noah-isme/theme-match-api/internal/repository"
	"github.com/noah-isme/theme-match-api/internal/service"
	"github.com/noah-isme/theme-match-api/pkg/cache"
	"github.com/noah-isme/theme-match-api/pkg/config"
	"github.com/noah-isme/theme-match-api/pkg/database"
	"github.com/noah-isme/theme-match-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/theme-match-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/theme-match-api/pkg/middleware/requestid"
)

// @title Theme Match API
// @version 0.1.0
// @description Students-to-themes priority assignment backend
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	cacheEnabled := redisClient != nil
	if cacheEnabled {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cacheEnabled)

	studentRepo := repository.NewStudentRepository(db)
	themeRepo := repository.NewThemeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	studentSvc := service.NewStudentService(studentRepo, assignmentRepo, themeRepo, validate, logr)
	themeSvc := service.NewThemeService(themeRepo, studentRepo, assignmentRepo, cacheSvc, validate, logr)
	prioritySvc := service.NewPriorityService(themeRepo, studentRepo, assignmentRepo, cacheSvc, logr)
	specializationSvc := service.NewSpecializationService(themeRepo, cacheSvc, logr)
	mlsortSvc := service.NewMLSortService(cfg.ML, themeRepo, assignmentRepo, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(themeSvc, prioritySvc, logr)

	studentHandler := handler.NewStudentHandler(studentSvc)
	themeHandler := handler.NewThemeHandler(themeSvc, prioritySvc, exportSvc)
	specializationHandler := handler.NewSpecializationHandler(specializationSvc, prioritySvc, mlsortSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	students := api.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/by-ids", studentHandler.GetByIDs)
		students.GET("/active", studentHandler.ListActive)
		students.GET("/unactive", studentHandler.ListInactive)
		students.GET("/:id", studentHandler.Get)
		students.POST("", studentHandler.Create)
		students.POST("/batch", studentHandler.CreateBatch)
		students.PUT("/activity", studentHandler.SetActivityBatch)
		students.PUT("/:id", studentHandler.Update)
		students.PUT("/:id/activity", studentHandler.SetActivity)
		students.DELETE("/by-ids", studentHandler.DeleteByIDs)
		students.DELETE("/unactive", studentHandler.DeleteInactive)
		students.DELETE("/:id", studentHandler.Delete)
	}

	themes := api.Group("/themes")
	{
		themes.GET("", themeHandler.List)
		themes.POST("", themeHandler.Create)
		themes.DELETE("", themeHandler.DeleteBatch)
		themes.GET("/ml-health", specializationHandler.MLHealth)
		themes.GET("/students/:studentId/themes", themeHandler.StudentThemes)
		themes.GET("/students/:studentId/specializations", themeHandler.StudentSpecializations)

		themes.GET("/:themeId", themeHandler.Get)
		themes.PUT("/:themeId", themeHandler.Update)
		themes.DELETE("/:themeId", themeHandler.Delete)

		themes.GET("/:themeId/students", themeHandler.Students)
		themes.GET("/:themeId/students/export", themeHandler.ExportStudents)
		themes.PUT("/:themeId/priority", themeHandler.ReplacePriority)
		themes.POST("/:themeId/students", themeHandler.AddStudents)
		themes.DELETE("/:themeId/students", themeHandler.RemoveStudents)
		themes.PUT("/:themeId/students/active", themeHandler.SetStudentsActivity)
		themes.POST("/:themeId/students/:studentId", themeHandler.AddStudent)
		themes.DELETE("/:themeId/students/:studentId", themeHandler.RemoveStudent)

		themes.POST("/:themeId/specializations", specializationHandler.Add)
		themes.PUT("/:themeId/specializations", specializationHandler.Replace)
		themes.DELETE("/:themeId/specializations/:name", specializationHandler.Remove)
		themes.GET("/:themeId/specializations/:name/students", specializationHandler.Students)
		themes.GET("/:themeId/specializations/:name/students/export", specializationHandler.ExportStudents)
		themes.PUT("/:themeId/specializations/:name/students", specializationHandler.ReplaceOrder)
		themes.POST("/:themeId/specializations/:name/students/:studentId", specializationHandler.AddStudent)
		themes.DELETE("/:themeId/specializations/:name/students/:studentId", specializationHandler.RemoveStudent)
		themes.PUT("/:themeId/specializations/:name/copy-from-theme", specializationHandler.CopyFromTheme)
		themes.POST("/:themeId/specializations/:name/add-from-theme", specializationHandler.AddFromTheme)
		themes.PUT("/:themeId/specializations/:name/activity", specializationHandler.SetActivity)
		themes.PUT("/:themeId/copy-to-specializations", specializationHandler.CopyToAll)
		themes.POST("/:themeId/add-to-specializations", specializationHandler.AddToAll)
		themes.POST("/:themeId/specializations/:name/ml-sort", specializationHandler.MLSort)
		themes.POST("/:themeId/ml-sort-all", specializationHandler.MLSortAll)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
