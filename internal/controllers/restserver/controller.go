package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/remoteflow/internal/constants"
	"github.com/chrissnell/remoteflow/internal/flow"
	"github.com/chrissnell/remoteflow/internal/log"
	"github.com/chrissnell/remoteflow/internal/storage/timescaledb"
	"github.com/chrissnell/remoteflow/pkg/config"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Store is the storage surface the handlers read from beyond the analyzer's
// reading source
type Store interface {
	FramePage(ctx context.Context, key flow.PartitionKey, tr flow.TimeRange, page, limit int) (timescaledb.FramePage, error)
	CaptureDates(ctx context.Context, key flow.PartitionKey) ([]timescaledb.CaptureDate, error)
	DailyTotals(ctx context.Context, day time.Time) ([]timescaledb.DailyTotal, error)
	LastHealth(ctx context.Context) timescaledb.Health
}

// Controller represents the REST server controller
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerData
	analysis     config.AnalysisData
	Server       http.Server
	analyzer     *flow.Analyzer
	store        Store
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, ac config.AnalysisData, analyzer *flow.Analyzer, store Store, logger *zap.SugaredLogger) (*Controller, error) {
	if analyzer == nil || store == nil {
		return nil, fmt.Errorf("REST server requires an analyzer and a store")
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Infof("server.listen-addr not provided; defaulting to %s (all interfaces)", config.DefaultListenAddr)
		sc.ListenAddr = config.DefaultListenAddr
	}

	if sc.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultPort)
		sc.Port = config.DefaultPort
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: sc,
		analysis:     ac,
		analyzer:     analyzer,
		store:        store,
		logger:       logger,
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		c.logger.Infof("REST server starting on %s", c.Server.Addr)

		var err error
		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}

		if err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() http.Handler {
	router := mux.NewRouter()
	router.Use(c.requestIDMiddleware)

	api := router.PathPrefix("/api/data").Subrouter()
	api.HandleFunc("/frames", c.handlers.GetFrames).Methods(http.MethodPost)
	api.HandleFunc("/flow-periods", c.handlers.GetFlowPeriods).Methods(http.MethodPost)
	api.HandleFunc("/dates", c.handlers.GetDates).Methods(http.MethodPost)
	api.HandleFunc("/window", c.handlers.GetWindow).Methods(http.MethodPost)
	api.HandleFunc("/daily-totals", c.handlers.GetDailyTotals).Methods(http.MethodGet)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	var h http.Handler = router
	if c.serverConfig.EnableCORS {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
			handlers.ExposedHeaders([]string{requestIDHeader}),
		)(h)
	}

	// Access log lines go through zap rather than straight to stdout
	accessLog := zap.NewStdLog(c.logger.Desugar().Named("access")).Writer()
	return handlers.CombinedLoggingHandler(accessLog, h)
}

const requestIDHeader = constants.RequestIDHeader

// requestIDMiddleware tags each request with an ID and a request-scoped logger
func (c *Controller) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := log.NewContext(r.Context(), c.logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
