package main

import (
	"io"
	"net/http"

	httptrace "github.com/DataDog/dd-trace-go/contrib/net/http/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/logger"
	"github.com/rainbow-me/api-audit/grpc/auth"
	grpcinterceptors "github.com/rainbow-me/api-audit/grpc/interceptors"
	"github.com/rainbow-me/api-audit/grpc/server"
	"github.com/rainbow-me/api-audit/http/interceptors"
	gininterceptors "github.com/rainbow-me/api-audit/http/interceptors/gin"
	"github.com/rainbow-me/api-audit/observability"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the audited orders API on gin, net/http and gRPC",
		RunE: func(*cobra.Command, []string) error {
			return serve(root)
		},
	}
}

func serve(root *rootOptions) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, settings, err := loadConfig(log, root.configDir)
	if err != nil {
		return err
	}

	observability.InitObservability(cfg.ServiceName, env.GetApplicationEnvSafe().String(), log)
	defer observability.Stop()

	stack := newAuditStack(cfg, settings, log)
	log.Info("audit configured",
		logger.String("level", stack.auditor.Level().String()),
		logger.Bool("database", cfg.Audit.Database),
		logger.Bool("event", cfg.Audit.Event),
	)

	srv, err := server.NewServer(
		server.WithLogger(log),
		server.WithHTTPServer("gin", cfg.HTTP.GinAddress, newGinEngine(cfg, stack, log)),
		server.WithHTTPServer("mux", cfg.HTTP.MuxAddress, newMux(cfg, stack, log)),
		server.WithGRPCServer("grpc", cfg.GRPC.Address, newGRPCServer(cfg, stack, log), registerHealth),
		server.WithShutdownHook(stack.shutdownHook()),
	)
	if err != nil {
		return err
	}
	return srv.Serve()
}

type order struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

func newGinEngine(cfg *Config, stack *auditStack, log *logger.Logger) *gin.Engine {
	if !env.IsLocalApplicationEnv() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), log))
	})
	r.Use(gininterceptors.DefaultInterceptors(
		gininterceptors.WithAudit(stack.auditor,
			interceptors.WithMask(cfg.Audit.Mask()),
			interceptors.WithFailOnError(cfg.Audit.FailOnError),
		),
	)...)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/orders/:id", func(c *gin.Context) {
		var o order
		if err := c.ShouldBindJSON(&o); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		o.ID = c.Param("id")
		c.JSON(http.StatusCreated, o)
	})
	r.GET("/panic", func(*gin.Context) {
		panic("boom")
	})
	return r
}

func newMux(cfg *Config, stack *auditStack, log *logger.Logger) http.Handler {
	mux := httptrace.NewServeMux(httptrace.WithService(cfg.ServiceName))
	mux.Handle("/orders", interceptors.AuditMiddleware(stack.auditor, http.HandlerFunc(createOrder),
		interceptors.WithMask(cfg.Audit.Mask()),
		interceptors.WithFailOnError(cfg.Audit.FailOnError),
	))

	var accessLog io.Writer = zap.NewStdLog(log.Named("access")).Writer()
	return handlers.ProxyHeaders(
		handlers.RecoveryHandler()(
			handlers.CombinedLoggingHandler(accessLog, mux),
		),
	)
}

func createOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.Copy(w, r.Body)
}

func newGRPCServer(cfg *Config, stack *auditStack, log *logger.Logger) *grpc.Server {
	authOpts := []auth.ConfigOption{}
	for client, key := range cfg.GRPC.APIKeys {
		authOpts = append(authOpts, auth.WithClientKey(client, key))
	}

	chain := grpcinterceptors.NewDefaultServerUnaryChain(cfg.ServiceName, log,
		grpcinterceptors.WithAuth(auth.NewConfig(authOpts...)),
	)
	// Health checks are the only service here and WithAudit skips them, so the audit
	// step is placed by hand, right after authentication.
	anchor := "logger"
	if chain.Exists("auth") {
		anchor = "auth"
	}
	chain.InsertAfter(anchor, "audit", grpcinterceptors.UnaryAuditServerInterceptor(stack.auditor,
		grpcinterceptors.WithAuditMask(cfg.Audit.Mask()),
		grpcinterceptors.WithAuditFailOnError(cfg.Audit.FailOnError),
	))

	return server.NewGRPCServer(chain, cfg.GRPC.Reflection)
}

func registerHealth(s *grpc.Server) {
	hs := health.NewServer()
	hs.SetServingStatus("orders", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}
