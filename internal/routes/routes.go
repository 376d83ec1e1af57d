package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/payflow-sz/payflow/internal/account"
	"github.com/payflow-sz/payflow/internal/config"
	"github.com/payflow-sz/payflow/internal/deposit"
	"github.com/payflow-sz/payflow/internal/feed"
	"github.com/payflow-sz/payflow/internal/identity"
	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/limits"
	"github.com/payflow-sz/payflow/internal/middleware"
	"github.com/payflow-sz/payflow/internal/momo"
	"github.com/payflow-sz/payflow/internal/notification"
	"github.com/payflow-sz/payflow/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backing store
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgres(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var owners identity.Repository
	if d.DB != nil {
		owners = identity.NewPostgresRepository(d.DB)
	} else {
		owners = identity.NewMemoryRepository()
	}

	var notifier notification.Notifier
	if d.Cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(d.Cfg.WebhookURL, d.Cfg.WebhookSecret)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Services and handlers
	guard := limits.NewGuard(limits.Limits{
		MinTopUp:              d.Cfg.Limits.MinTopUp,
		MaxTopUp:              d.Cfg.Limits.MaxTopUp,
		MinManualDeposit:      d.Cfg.Limits.MinManualDeposit,
		MaxManualDeposit:      d.Cfg.Limits.MaxManualDeposit,
		DailyTransactionLimit: d.Cfg.Limits.DailyTransactionLimit,
	}, store)

	identitySvc := identity.NewService(owners)
	accountSvc := account.NewService(owners, store)
	transferSvc := transfer.NewService(store, notifier)
	depositSvc := deposit.NewService(store, deposit.Instructions{
		BankName:          d.Cfg.DepositDetails.BankName,
		BankAccountNumber: d.Cfg.DepositDetails.BankAccountNumber,
		BankAccountName:   d.Cfg.DepositDetails.BankAccountName,
		BranchCode:        d.Cfg.DepositDetails.BranchCode,
		SwiftCode:         d.Cfg.DepositDetails.SwiftCode,
		MoMoPhone:         d.Cfg.DepositDetails.MoMoPhone,
		MoMoAccountName:   d.Cfg.DepositDetails.MoMoAccountName,
	}, notifier)
	momoSvc := momo.NewService(momo.StaticInitiator{}, transferSvc, guard)
	changeFeed := feed.New(store, d.Logger)

	identityHandler := identity.NewHandler(identitySvc)
	accountHandler := account.NewHandler(accountSvc)
	transferHandler := transfer.NewHandler(transferSvc, guard)
	depositHandler := deposit.NewHandler(depositSvc, guard)
	momoHandler := momo.NewHandler(momoSvc)
	feedHandler := feed.NewHandler(changeFeed, store)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterIdentityRoutes(api, identityHandler)
	RegisterAccountRoutes(api, accountHandler)
	RegisterTransferRoutes(api, transferHandler)
	RegisterMoMoRoutes(api, momoHandler)
	RegisterDepositRoutes(api, depositHandler, d.Cfg.VerifierKey)
	RegisterFeedRoutes(api, feedHandler)

	return nil
}
