package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusworks/records-api/api/swagger"
	"github.com/campusworks/records-api/internal/handler"
	"github.com/campusworks/records-api/internal/middleware"
	"github.com/campusworks/records-api/internal/models"
	"github.com/campusworks/records-api/internal/repository"
	"github.com/campusworks/records-api/internal/service"
	"github.com/campusworks/records-api/pkg/cache"
	"github.com/campusworks/records-api/pkg/config"
	"github.com/campusworks/records-api/pkg/database"
	"github.com/campusworks/records-api/pkg/logger"
	corsmiddleware "github.com/campusworks/records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusworks/records-api/pkg/middleware/requestid"
)

// @title Academic Records API
// @version 1.0.0
// @description Grade scaling, GPA aggregation and enrollment management
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, statistics caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, cfg.Enrollment.InsertRetries, metricsSvc)
	gradeRepo := repository.NewGradeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	instructorSvc := service.NewInstructorService(instructorRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, instructorRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, gradeRepo, cacheRepo, metricsSvc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, courseRepo, instructorRepo, cacheRepo, metricsSvc, validate, logr)
	reportSvc := service.NewReportService(gradeRepo, studentRepo, enrollmentRepo, cacheRepo, service.ReportConfig{
		CacheEnabled: cfg.Statistics.CacheEnabled,
		CacheTTL:     cfg.Statistics.CacheTTL,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, reportSvc)
	instructorHandler := handler.NewInstructorHandler(instructorSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, reportSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, reportSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

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
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/reset-password", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), authHandler.ResetPassword)
	}

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		students.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), studentHandler.List)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), studentHandler.Create)
		students.GET("/:regNo", studentHandler.Get)
		students.PUT("/:regNo", middleware.RequireRoles(models.RoleAdmin), studentHandler.Update)
		students.DELETE("/:regNo", middleware.RequireRoles(models.RoleAdmin), studentHandler.Delete)
		students.GET("/:regNo/gpa", studentHandler.GPA)
		students.GET("/:regNo/transcript", studentHandler.Transcript)
	}

	instructors := api.Group("/instructors", middleware.JWT(authSvc))
	{
		instructors.GET("", instructorHandler.List)
		instructors.POST("", middleware.RequireRoles(models.RoleAdmin), instructorHandler.Create)
		instructors.GET("/:id", instructorHandler.Get)
		instructors.GET("/:id/courses", instructorHandler.AssignedCourses)
	}

	courses := api.Group("/courses", middleware.JWT(authSvc))
	{
		courses.GET("", courseHandler.List)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)
		courses.GET("/:code", courseHandler.Get)
		courses.PUT("/:code", middleware.RequireRoles(models.RoleAdmin), courseHandler.Update)
		courses.DELETE("/:code", middleware.RequireRoles(models.RoleAdmin), courseHandler.Delete)
		courses.PUT("/:code/prerequisites", middleware.RequireRoles(models.RoleAdmin), courseHandler.SetPrerequisites)
		courses.PUT("/:code/instructor", middleware.RequireRoles(models.RoleAdmin), courseHandler.AssignInstructor)
		courses.GET("/:code/statistics", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), courseHandler.Statistics)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Enroll)
		enrollments.GET("/statistics", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), enrollmentHandler.Statistics)
		enrollments.POST("/:id/withdraw", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollmentHandler.Withdraw)
	}

	grades := api.Group("/grades", middleware.JWT(authSvc))
	{
		grades.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), gradeHandler.Submit)
		grades.GET("/:enrollmentId", gradeHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
