package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EchoQuiz/config"
	"EchoQuiz/core/channel"
	"EchoQuiz/core/llm"
	"EchoQuiz/core/mcq"
	"EchoQuiz/core/transcribe"
	"EchoQuiz/core/transcript"
	"EchoQuiz/db"
	"EchoQuiz/logger"
	"EchoQuiz/model"
	"EchoQuiz/repository"
	"EchoQuiz/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  10 * time.Minute, // 大文件上传
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Transcript{}, &model.MCQ{}); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	// Redis 不可用时降级运行：状态镜像与分段缓存失效，核心流程不受影响
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis连接失败，状态镜像与缓存禁用", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		log.Println("Successfully connected to Redis")
	}

	// MinIO 同样是可选的归档依赖
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO初始化失败，归档禁用", logger.ErrorField(err))
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.UploadDir)
	ensureDirExists(cfg.TranscriptDir)

	transcriptRepo := repository.NewGormTranscriptRepository(db.GormDB)
	mcqRepo := repository.NewGormMCQRepository(db.GormDB)

	hub := channel.NewHub()
	go hub.Run()
	defer hub.Stop()

	runner := transcribe.NewRunner(cfg, hub, transcriptRepo)
	store := transcript.NewStore(cfg, transcriptRepo, mcqRepo)
	llmClient := llm.NewClient(cfg.LLMBaseURL)
	orchestrator := mcq.NewOrchestrator(cfg, mcqRepo, transcriptRepo, llmClient, hub)

	apiHandler := NewAPIHandler(cfg, hub, runner, store, orchestrator, transcriptRepo, mcqRepo)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 实时通道
	router.HandleFunc("/ws", apiHandler.WebSocketHandler)

	// 转录相关的API端点
	router.HandleFunc("/api/transcription/upload", apiHandler.UploadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/transcription/all-transcriptions", apiHandler.ListTranscriptionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/transcription/{fileId}", apiHandler.GetTranscriptionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/full-transcript/{fileId}", apiHandler.GetFullTranscriptHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/transcript/{fileId}", apiHandler.DeleteTranscriptHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/transcription/metadata/{fileId}", apiHandler.GetMetadataHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/scan", apiHandler.ScanHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/stats", apiHandler.StatsHandler).Methods(http.MethodGet)

	// 分段与题目相关的API端点
	router.HandleFunc("/api/transcription/segment/{fileId}/{segmentId}", apiHandler.GetSegmentContentHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/mcqs/{fileId}/{segmentId}", apiHandler.GetMCQsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/transcription/generate-mcqs", apiHandler.GenerateMCQsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/transcription/mcq/{mcqId}", apiHandler.UpdateMCQHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/transcription/mcq/{mcqId}", apiHandler.DeleteMCQHandler).Methods(http.MethodDelete)

	// 对账轮询端点
	router.HandleFunc("/status/{fileId}", apiHandler.StatusHandler).Methods(http.MethodGet)

	// 转录产物静态服务
	transcriptsFileServer := http.FileServer(http.Dir(cfg.TranscriptDir))
	router.PathPrefix("/transcripts/").Handler(http.StripPrefix("/transcripts/", transcriptsFileServer))

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Upload media via POST to /api/transcription/upload")
		log.Println("Connect the realtime channel at /ws")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}
