package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/adapter/cache"
	"github.com/rl1809/stockroom/internal/adapter/ingest"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	dashboardRecentMovements = 10
	defaultNotificationLimit = 50
)

// Services groups what the HTTP API needs. Snapshots may be nil, in which
// case every list goes to the store.
type Services struct {
	Items         *service.ItemService
	Ledger        *service.LedgerService
	Orders        *service.OrderService
	Forms         *ingest.FormAdapter
	Simulation    *ingest.SimulationAdapter
	Webhooks      *ingest.WebhookProcessor
	Notifications port.NotificationRepository
	Snapshots     *cache.SnapshotCache
}

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

type movementResponse struct {
	Item     domain.InventoryItem  `json:"item"`
	Movement domain.Movement       `json:"movement"`
	LowStock *domain.LowStockEvent `json:"lowStock,omitempty"`
	Created  bool                  `json:"created"`
}

type movementStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type shipRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	h := &HTTPHandler{svc: svc, logger: logger}
	if svc.Snapshots != nil {
		h.registerSnapshots()
	}
	return h
}

// NewApp builds the fiber application with every route mounted.
func NewApp(h *HTTPHandler, auth *Auth, corsOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: h.errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	h.Routes(app, auth)
	return app
}

func (h *HTTPHandler) Routes(app *fiber.App, auth *Auth) {
	app.Get("/health", h.HealthCheck)

	// Shipping providers cannot hold user tokens.
	app.Post("/webhooks/shipstation", h.ShipStationWebhook)

	api := app.Group("/api", auth.JWTMiddleware())
	api.Get("/dashboard", h.Dashboard)

	items := api.Group("/items")
	items.Get("/", h.ListItems)
	items.Get("/low-stock", h.LowStock)
	items.Get("/:id", h.GetItem)
	items.Post("/", RoleGuard(RoleAdmin, RoleManagement, RoleWarehouse), h.CreateItem)
	items.Patch("/:id", RoleGuard(RoleAdmin, RoleManagement, RoleWarehouse), h.UpdateItem)
	items.Delete("/:id", RoleGuard(RoleAdmin, RoleManagement), h.DeleteItem)

	movements := api.Group("/movements")
	movements.Get("/", h.ListMovements)
	movements.Post("/", RoleGuard(RoleAdmin, RoleManagement, RoleWarehouse, RoleFulfillment), h.SubmitMovement)
	movements.Patch("/:id/status", RoleGuard(RoleAdmin, RoleManagement, RoleWarehouse), h.UpdateMovementStatus)

	orders := api.Group("/orders")
	orders.Get("/", h.ListOrders)
	orders.Get("/:id", h.GetOrder)
	orders.Post("/", RoleGuard(RoleAdmin, RoleManagement, RoleFulfillment), h.CreateOrder)
	orders.Patch("/:id/status", RoleGuard(RoleAdmin, RoleManagement, RoleFulfillment), h.UpdateOrderStatus)
	orders.Post("/:id/ship", RoleGuard(RoleAdmin, RoleManagement, RoleFulfillment), h.ShipOrder)

	api.Get("/notifications", RoleGuard(RoleAdmin, RoleManagement), h.ListNotifications)
	api.Post("/simulate/shipment", RoleGuard(RoleAdmin), h.SimulateShipment)
}

func (h *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HTTPHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.svc.Items.Stats(c.UserContext(), dashboardRecentMovements)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *HTTPHandler) ListItems(c *fiber.Ctx) error {
	filter := domain.ItemFilter{
		Location: c.Query("location"),
		LowStock: c.QueryBool("lowStock", false),
		Search:   c.Query("search"),
		Limit:    c.QueryInt("limit", 0),
		Offset:   c.QueryInt("offset", 0),
	}
	if filter == (domain.ItemFilter{}) && h.svc.Snapshots != nil {
		v, err := h.svc.Snapshots.Get(c.UserContext(), domain.CollectionInventory)
		if err != nil {
			return err
		}
		return c.JSON(v)
	}

	items, err := h.svc.Items.ListItems(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *HTTPHandler) LowStock(c *fiber.Ctx) error {
	items, err := h.svc.Items.LowStock(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *HTTPHandler) GetItem(c *fiber.Ctx) error {
	item, err := h.svc.Items.GetItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *HTTPHandler) CreateItem(c *fiber.Ctx) error {
	var req domain.NewItem
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.svc.Items.AddItem(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionInventory)
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *HTTPHandler) UpdateItem(c *fiber.Ctx) error {
	var req domain.ItemPatch
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.svc.Items.UpdateItem(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionInventory)
	return c.JSON(item)
}

func (h *HTTPHandler) DeleteItem(c *fiber.Ctx) error {
	if err := h.svc.Items.DeleteItem(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	h.invalidate(domain.CollectionInventory)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPHandler) ListMovements(c *fiber.Ctx) error {
	filter := domain.MovementFilter{
		SKU:    c.Query("sku"),
		Type:   domain.MovementType(c.Query("type")),
		Status: domain.MovementStatus(c.Query("status")),
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return &domain.ValidationError{Field: "type", Message: "unknown movement type"}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return &domain.ValidationError{Field: "status", Message: "unknown movement status"}
	}
	if filter == (domain.MovementFilter{}) && h.svc.Snapshots != nil {
		v, err := h.svc.Snapshots.Get(c.UserContext(), domain.CollectionMovements)
		if err != nil {
			return err
		}
		return c.JSON(v)
	}

	movements, err := h.svc.Ledger.ListMovements(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(movements)
}

func (h *HTTPHandler) SubmitMovement(c *fiber.Ctx) error {
	var req ingest.FormSubmission
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.Forms.Submit(c.UserContext(), req, userID(c))
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionInventory, domain.CollectionMovements)
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res))
}

func (h *HTTPHandler) UpdateMovementStatus(c *fiber.Ctx) error {
	var req movementStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	mv, err := h.svc.Ledger.UpdateMovementStatus(c.UserContext(), c.Params("id"), domain.MovementStatus(req.Status), req.Notes)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionMovements)
	return c.JSON(mv)
}

func (h *HTTPHandler) ListOrders(c *fiber.Ctx) error {
	status := domain.OrderStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return &domain.ValidationError{Field: "status", Message: "unknown order status"}
	}
	if status == "" && h.svc.Snapshots != nil {
		v, err := h.svc.Snapshots.Get(c.UserContext(), domain.CollectionOrders)
		if err != nil {
			return err
		}
		return c.JSON(v)
	}

	orders, err := h.svc.Orders.ListOrders(c.UserContext(), status)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func (h *HTTPHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.svc.Orders.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *HTTPHandler) CreateOrder(c *fiber.Ctx) error {
	var req domain.Order
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.svc.Orders.CreateOrder(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionOrders)
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *HTTPHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req orderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.svc.Orders.UpdateStatus(c.UserContext(), c.Params("id"), domain.OrderStatus(req.Status))
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionOrders)
	return c.JSON(order)
}

func (h *HTTPHandler) ShipOrder(c *fiber.Ctx) error {
	var req shipRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.svc.Orders.MarkShipped(c.UserContext(), c.Params("id"), req.TrackingNumber, req.Carrier)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionOrders)
	return c.JSON(order)
}

func (h *HTTPHandler) ListNotifications(c *fiber.Ctx) error {
	events, err := h.svc.Notifications.ListNotifications(c.UserContext(), c.QueryInt("limit", defaultNotificationLimit))
	if err != nil {
		return &domain.PersistenceError{Op: "list notifications", Err: err}
	}
	return c.JSON(events)
}

func (h *HTTPHandler) SimulateShipment(c *fiber.Ctx) error {
	var req ingest.SimulatedShipment
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.Simulation.Simulate(c.UserContext(), req)
	if err != nil {
		return err
	}
	h.invalidate(domain.CollectionInventory, domain.CollectionMovements)
	return c.JSON(toMovementResponse(res))
}

// ShipStationWebhook answers 200 once the event has been processed, even when
// some of its items failed, so the provider does not redeliver it.
func (h *HTTPHandler) ShipStationWebhook(c *fiber.Ctx) error {
	eventType := c.Get(ingest.HeaderEventType)
	ev, err := ingest.Decode(eventType, c.Body())
	if err != nil {
		h.logger.Warn("rejected webhook payload", zap.String("event", eventType), zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if on, ok := ev.(ingest.OrderNotify); ok {
		on.EventID = c.Get(ingest.HeaderDeliveryID)
		ev = on
	}

	result, err := h.svc.Webhooks.Process(c.UserContext(), ev)
	if errors.Is(err, ingest.ErrMalformedPayload) {
		h.logger.Warn("rejected webhook payload", zap.String("event", eventType), zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.logger.Error("webhook processing failed", zap.String("event", ev.EventType()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "error processing webhook",
			"result":  result,
		})
	}

	h.invalidate(domain.CollectionInventory, domain.CollectionMovements, domain.CollectionOrders)
	return c.JSON(fiber.Map{
		"message": "webhook processed",
		"result":  result,
	})
}

func (h *HTTPHandler) registerSnapshots() {
	h.svc.Snapshots.Register(domain.CollectionInventory, func(ctx context.Context) (interface{}, error) {
		return h.svc.Items.ListItems(ctx, domain.ItemFilter{})
	})
	h.svc.Snapshots.Register(domain.CollectionMovements, func(ctx context.Context) (interface{}, error) {
		return h.svc.Ledger.ListMovements(ctx, domain.MovementFilter{})
	})
	h.svc.Snapshots.Register(domain.CollectionOrders, func(ctx context.Context) (interface{}, error) {
		return h.svc.Orders.ListOrders(ctx, "")
	})
}

// invalidate drops snapshots this process just changed, ahead of the change
// feed round trip.
func (h *HTTPHandler) invalidate(collections ...string) {
	if h.svc.Snapshots == nil {
		return
	}
	for _, name := range collections {
		h.svc.Snapshots.Invalidate(name)
	}
}

func (h *HTTPHandler) errorHandler(c *fiber.Ctx, err error) error {
	code, message := httpStatus(err)
	if code >= fiber.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	body := fiber.Map{
		"error":   true,
		"message": message,
		"code":    code,
	}
	var v *domain.ValidationError
	if errors.As(err, &v) && v.Field != "" {
		body["field"] = v.Field
	}
	return c.Status(code).JSON(body)
}

func httpStatus(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	switch {
	case domain.IsValidation(err):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrMovementNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicateSKU),
		errors.Is(err, domain.ErrDuplicateDelivery),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, service.ErrCommitConflict):
		return fiber.StatusConflict, err.Error()
	case domain.IsPersistence(err):
		return fiber.StatusServiceUnavailable, "storage unavailable"
	}
	return fiber.StatusInternalServerError, "internal error"
}

func toMovementResponse(res *ledger.Result) movementResponse {
	return movementResponse{
		Item:     res.Item,
		Movement: res.Movement,
		LowStock: res.Signal,
		Created:  res.Created,
	}
}
