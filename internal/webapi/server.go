package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/donateboard/internal/provider"
	"github.com/MarkoPoloResearchLab/donateboard/internal/store/docstore"
	"github.com/MarkoPoloResearchLab/donateboard/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/donateboard/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// Run boots the donation API using the supplied configuration.
func Run(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	service, err := donate.NewService(store, donate.WithOperationLogger(newOperationLogger(logger)))
	if err != nil {
		return err
	}

	initMetrics()
	handler := newHandler(cfg, logger, service)
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("donateboard listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("mock_donations", cfg.MockDonations),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func openStore(ctx context.Context, cfg Config) (donate.Store, func(), error) {
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		return memstore.New(), func() {}, nil
	case StoreDriverSQLite:
		store, err := docstore.OpenSQLite(cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case StoreDriverPostgres:
		store, err := pgstore.Connect(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newHandler(cfg Config, logger *zap.Logger, service *donate.Service) *httpHandler {
	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	if cfg.PayPalEnabled() {
		handler.paypal = provider.NewPayPal(provider.PayPalConfig{
			BaseURL:   cfg.PayPalBaseURL,
			ClientID:  cfg.PayPalClientID,
			Secret:    cfg.PayPalSecret,
			WebhookID: cfg.PayPalWebhookID,
			BrandName: cfg.PayPalBrandName,
			ReturnURL: cfg.AppBaseURL + "/thanks.html",
			CancelURL: cfg.AppBaseURL + "/",
		}, logger)
	}
	if cfg.BTCPayEnabled() {
		handler.btcpay = provider.NewBTCPay(provider.BTCPayConfig{
			BaseURL:     cfg.BTCPayBaseURL,
			StoreID:     cfg.BTCPayStoreID,
			APIKey:      cfg.BTCPayAPIKey,
			RedirectURL: cfg.AppBaseURL + "/?paid=1",
		}, logger)
	}
	if cfg.MockDonations {
		handler.local = provider.NewLocal()
	}
	return handler
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/leaderboard", handler.handleLeaderboard)
	api.GET("/leaderboard/:nick", handler.handleLeaderboardNick)
	if handler.paypal != nil {
		api.POST("/paypal/webhook", handler.handlePayPalWebhook)
		api.POST("/donate/paypal", handler.handleCreatePayPalOrder)
	}
	if handler.btcpay != nil {
		api.POST("/crypto/webhook", handler.handleCryptoWebhook)
		api.POST("/donate/crypto", handler.handleCreateCryptoInvoice)
	}
	if handler.local != nil {
		api.POST("/donate/mock", handler.handleMockDonate)
	}

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *donate.Service
	cfg     Config
	paypal  *provider.PayPal
	btcpay  *provider.BTCPay
	local   *provider.Local
}

func (handler *httpHandler) handlePayPalWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		observeSettlement(provider.ProviderPayPal, outcomeMalformed)
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_body", "unreadable body"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()

	settlement, err := handler.paypal.VerifyWebhook(requestCtx, ctx.Request.Header, body)
	switch {
	case errors.Is(err, provider.ErrIgnored):
		observeSettlement(provider.ProviderPayPal, outcomeIgnored)
		ctx.JSON(http.StatusOK, statusEnvelope{Status: "ignored"})
		return
	case errors.Is(err, provider.ErrMalformed):
		observeSettlement(provider.ProviderPayPal, outcomeMalformed)
		ctx.JSON(http.StatusBadRequest, errorResponse("malformed", "missing fields"))
		return
	case err != nil:
		// Verification failures of every kind fail closed here, including
		// transport errors talking to the verification endpoint.
		observeSettlement(provider.ProviderPayPal, outcomeUnauthenticated)
		handler.logger.Warn("paypal webhook rejected", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, errorResponse("unauthenticated", "bad signature"))
		return
	}
	handler.creditSettlement(ctx, settlement)
}

func (handler *httpHandler) handleCryptoWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		observeSettlement(provider.ProviderBTCPay, outcomeMalformed)
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_body", "unreadable body"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()

	settlement, err := handler.btcpay.VerifyWebhook(requestCtx, body)
	switch {
	case errors.Is(err, provider.ErrIgnored), errors.Is(err, provider.ErrMalformed):
		// Acknowledged without mutation: the event is authentic as far as the
		// re-fetch could tell but carries nothing creditable, and a 4xx/5xx
		// would only make the provider redeliver it forever.
		observeSettlement(provider.ProviderBTCPay, cryptoAckOutcome(err))
		ctx.JSON(http.StatusOK, statusEnvelope{Status: "ignored"})
		return
	case err != nil:
		// Re-fetch failure: surface a server error so the provider's retry
		// mechanism redelivers once the management API is reachable again.
		observeSettlement(provider.ProviderBTCPay, outcomeUpstreamError)
		handler.logger.Error("btcpay invoice fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("upstream_error", "invoice fetch failed"))
		return
	}
	handler.creditSettlement(ctx, settlement)
}

func (handler *httpHandler) creditSettlement(ctx *gin.Context, settlement provider.Settlement) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	_, err := handler.service.CreditSettlement(requestCtx, settlement.Provider, settlement.EventID, settlement.Nick, settlement.Amount)
	if err != nil {
		observeSettlement(settlement.Provider, outcomeStoreError)
		handler.logger.Error("credit failed", zap.Error(err), zap.String("provider", settlement.Provider))
		ctx.JSON(http.StatusInternalServerError, errorResponse("store_error", "credit failed"))
		return
	}
	observeSettlement(settlement.Provider, outcomeOK)
	observeCredit(settlement.Provider, settlement.Amount.Decimal().InexactFloat64())
	ctx.JSON(http.StatusOK, statusEnvelope{Status: "ok"})
}

func (handler *httpHandler) handleCreatePayPalOrder(ctx *gin.Context) {
	nick, amount, ok := handler.bindDonation(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	approveURL, err := handler.paypal.CreateOrder(requestCtx, nick, amount)
	if err != nil {
		handler.logger.Error("paypal order creation failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("upstream_error", "failed to create order"))
		return
	}
	ctx.JSON(http.StatusOK, approveEnvelope{ApproveURL: approveURL})
}

func (handler *httpHandler) handleCreateCryptoInvoice(ctx *gin.Context) {
	nick, amount, ok := handler.bindDonation(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	checkoutURL, err := handler.btcpay.CreateInvoice(requestCtx, nick, amount)
	if err != nil {
		handler.logger.Error("btcpay invoice creation failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("upstream_error", "failed to create invoice"))
		return
	}
	ctx.JSON(http.StatusOK, checkoutEnvelope{CheckoutURL: checkoutURL})
}

func (handler *httpHandler) handleMockDonate(ctx *gin.Context) {
	var request donationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	settlement, err := handler.local.Verify(request.Nick, request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_donation", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	total, err := handler.service.CreditSettlement(requestCtx, settlement.Provider, settlement.EventID, settlement.Nick, settlement.Amount)
	if err != nil {
		handler.logger.Error("mock credit failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("store_error", "credit failed"))
		return
	}
	observeSettlement(settlement.Provider, outcomeOK)
	observeCredit(settlement.Provider, settlement.Amount.Decimal().InexactFloat64())
	ctx.JSON(http.StatusOK, mockDonationEnvelope{
		OK:    true,
		Nick:  settlement.Nick.String(),
		Total: json.Number(total.StringFixed(2)),
	})
}

func (handler *httpHandler) handleLeaderboard(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	rows, err := handler.service.TopN(requestCtx, handler.cfg.LeaderboardLimit)
	if err != nil {
		handler.logger.Error("leaderboard read failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("store_error", "board unavailable"))
		return
	}
	payload := leaderboardEnvelope{Top: make([]boardRowPayload, 0, len(rows))}
	for _, row := range rows {
		payload.Top = append(payload.Top, boardRowPayload{
			Nick:  row.Nick,
			Total: json.Number(row.Total.StringFixed(2)),
		})
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) handleLeaderboardNick(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.ProviderTimeout)
	defer cancel()
	row, found, err := handler.service.FindNick(requestCtx, ctx.Param("nick"))
	if err != nil {
		handler.logger.Error("nick lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("store_error", "board unavailable"))
		return
	}
	if !found {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_nick", "nick has not donated"))
		return
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.JSON(http.StatusOK, boardRowPayload{
		Nick:  row.Nick,
		Total: json.Number(row.Total.StringFixed(2)),
	})
}

func (handler *httpHandler) bindDonation(ctx *gin.Context) (donate.Nick, donate.Amount, bool) {
	var request donationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return donate.Nick{}, donate.Amount{}, false
	}
	nick, err := donate.NewNick(request.Nick)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_nick", "bad nick"))
		return donate.Nick{}, donate.Amount{}, false
	}
	amount, err := donate.NewPledgeAmount(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "bad amount"))
		return donate.Nick{}, donate.Amount{}, false
	}
	return nick, amount, true
}

func cryptoAckOutcome(err error) string {
	if errors.Is(err, provider.ErrMalformed) {
		return outcomeMalformed
	}
	return outcomeIgnored
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
