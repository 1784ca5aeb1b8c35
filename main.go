package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dilshat/bulk-sender/campaign"
	"github.com/dilshat/bulk-sender/controller"
	"github.com/dilshat/bulk-sender/dao"
	_ "github.com/dilshat/bulk-sender/docs"
	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/log"
	"github.com/dilshat/bulk-sender/service"
	"github.com/dilshat/bulk-sender/session"
	"github.com/dilshat/bulk-sender/sms"
	"github.com/dilshat/bulk-sender/upload"
	"github.com/dilshat/bulk-sender/util"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// @title Bulk sender HTTP API
// @description Bulk messaging campaigns over device sessions

// @contact.name Dilshat Aliev
// @contact.email dilshat.aliev@gmail.com

var envErr error

func init() {
	//.env is optional, reported once the logger is up
	envErr = godotenv.Load()
}

func main() {
	logger, err := log.Init(util.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	if envErr != nil {
		zap.L().Info("No .env file loaded", zap.Error(envErr))
	}

	//create db client
	dbClient, err := dao.GetClient(util.GetEnv("DB_PATH", "bulk.db"))
	if err != nil {
		log.Fatal("Error opening db", err)
	}
	defer dbClient.Close()

	deviceDao := dao.NewDeviceDao(dbClient)
	campaignDao := dao.NewCampaignDao(dbClient)
	deliveryLogDao := dao.NewDeliveryLogDao(dbClient)

	publisher := event.NewPublisher(util.GetEnvAsInt("EVENT_BUFFER", 256))
	defer publisher.Shutdown()

	registry := session.NewRegistry(newConnector(), deviceDao, publisher)

	supervisor := campaign.NewSupervisor(registry, publisher, campaignDao, campaign.Config{
		Delay:             util.GetEnvAsDuration("SEND_DELAY_MS", time.Millisecond, time.Second),
		Address:           campaign.AffixAddress(util.GetEnv("ADDRESS_PREFIX", ""), util.GetEnv("ADDRESS_SUFFIX", "")),
		Dedup:             util.GetEnvAsBool("DEDUP_CONTACTS", false),
		PauseOnDisconnect: util.GetEnvAsBool("PAUSE_ON_DISCONNECT", true),
	})

	uploads, err := upload.NewStore(util.GetEnv("UPLOAD_DIR", "uploads"))
	if err != nil {
		log.Fatal("Error creating upload dir", err)
	}

	bulkService := service.NewService(registry, supervisor, publisher, deviceDao, campaignDao, deliveryLogDao, uploads,
		service.Config{
			LogStoreDays: util.GetEnvAsInt("LOG_STORE_DAYS", 7),
			Webhook:      util.GetEnv("WEB_HOOK", ""),
		})

	//attach http handlers
	e := echo.New()
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnv("BODY_LIMIT", "20M")))
	corsOrigin := util.GetEnv("CORS_ORIGIN", "*")
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: []string{corsOrigin}}))
	e.Static(strings.TrimSuffix(upload.URL_PREFIX, "/"), uploads.Dir())

	bindRoutes(e, bulkService)
	e.GET("/ws", controller.GetEventsFunc(publisher, corsOrigin))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//sessions outlive the errgroup ctx, they are closed once campaigns are paused
	sessionsCtx, closeSessions := context.WithCancel(context.Background())
	defer closeSessions()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(sessionsCtx)
	})
	g.Go(func() error {
		return supervisor.Run(ctx)
	})
	g.Go(func() error {
		return bulkService.Run(ctx)
	})
	g.Go(func() error {
		//start http server
		err := e.Start(":" + util.GetEnv("HTTP_PORT", "8080"))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return shutdown(shutdownCtx, supervisor, closeSessions, e)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server stopped", err)
	}
}

type stopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown pauses campaigns and waits for their in-flight sends before the session
// connections are closed, then drains the http server.
func shutdown(ctx context.Context, campaigns stopper, closeSessions context.CancelFunc, server stopper) error {
	log.ErrIfErr("Error pausing campaigns", campaigns.Shutdown(ctx))
	closeSessions()
	return server.Shutdown(ctx)
}

// newConnector picks the transport behind device sessions.
func newConnector() session.Connector {
	if util.GetEnv("TRANSPORT", "smpp") == "dryrun" {
		return sms.DryRun{}
	}

	return sms.NewConnector(sms.Config{
		Host:          util.GetEnv("SMS_IP", ""),
		Port:          util.GetEnvAsInt("SMS_PORT", 8018),
		SystemId:      util.GetEnv("SMS_ID", ""),
		Password:      util.GetEnv("SMS_PWD", ""),
		Source:        util.GetEnv("SMS_SOURCE", ""),
		EnquireLink:   util.GetEnvAsInt("ENQ_LNK_SEC", 30),
		Tps:           util.GetEnvAsInt("TRX_PER_SEC", 100),
		SubmitTimeout: util.GetEnvAsDuration("SUBMIT_TIMEOUT_SEC", time.Second, 10*time.Second),
	})
}

func bindRoutes(e *echo.Echo, service service.Service) {

	e.GET("/api/devices", controller.GetDevicesFunc(service))
	e.POST("/api/devices", controller.GetAddDeviceFunc(service))
	e.DELETE("/api/devices/:sessionName", controller.GetRemoveDeviceFunc(service))

	e.POST("/api/upload/contacts", controller.GetUploadContactsFunc(service))
	e.POST("/api/upload/images", controller.GetUploadImagesFunc(service))

	e.GET("/api/campaigns", controller.GetCampaignsFunc(service))
	e.POST("/api/campaigns", controller.GetStartCampaignFunc(service))
	e.GET("/api/campaigns/:id", controller.GetCampaignFunc(service))
	e.POST("/api/campaigns/:id/stop", controller.GetStopCampaignFunc(service))
	e.POST("/api/campaigns/:id/resume", controller.GetResumeCampaignFunc(service))
	e.POST("/api/campaigns/:id/cancel", controller.GetCancelCampaignFunc(service))

	e.GET("/api/dashboard/stats", controller.GetStatsFunc(service))

	e.GET("/api/logs/:campaignId", controller.GetLogsFunc(service))
	e.GET("/api/logs/export/:campaignId", controller.GetExportLogsFunc(service))
}
