package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threadswap/chat-service/global"
	"github.com/threadswap/chat-service/logger"
	"github.com/threadswap/chat-service/module/chat/api"
	"github.com/threadswap/chat-service/module/chat/message"
	"github.com/threadswap/chat-service/module/chat/seq"
	"github.com/threadswap/chat-service/module/chat/service"
	"github.com/threadswap/chat-service/module/user"
	"github.com/threadswap/chat-service/service/mgo"
	"github.com/threadswap/chat-service/service/natsx"
	redisstore "github.com/threadswap/chat-service/service/storage/redis"
	"github.com/threadswap/chat-service/tools/ids"
	"github.com/threadswap/chat-service/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := global.LoadConfig()
	if err != nil {
		logger.Error("load config", zap.Error(err))
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("CHAT_JWT_SECRET is required")
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgo.Connect(ctx, mgo.Config{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		MaxPoolSize: cfg.MongoPoolSize,
	}); err != nil {
		logger.Error("mongo connect", zap.Error(err))
		os.Exit(1)
	}
	defer mgo.Disconnect(context.Background())

	if err := redisstore.Init(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Error("redis connect", zap.Error(err))
		os.Exit(1)
	}
	defer redisstore.Close()

	db := mgo.GetDB()
	store := message.NewStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Error("ensure indexes", zap.Error(err))
		os.Exit(1)
	}

	var wake service.Wake
	if cfg.NatsURL != "" {
		nc, err := natsx.New(natsx.Config{
			Servers: []string{cfg.NatsURL},
			Name:    "chat-service",
		})
		if err != nil {
			// wake events are an optimization; the poll path still delivers
			logger.Warn("nats connect failed, wake events disabled", zap.Error(err))
		} else {
			defer nc.Close()
			wake = nc
		}
	}

	svc := service.New(
		store,
		seq.NewAllocator(redisstore.Get(), seq.NewDAO(db)),
		user.NewDirectory(db),
		wake,
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.Register(r, &api.Handler{Svc: svc}, []byte(cfg.JWTSecret), func() error {
		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.Ping(hctx); err != nil {
			return err
		}
		return redisstore.Ping(hctx)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	safe.Go("http-server", func() {
		logger.Info("chat service listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
