package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gitlab.com/dirk.krummacker/customers-service/internal/apperr"
	"gitlab.com/dirk.krummacker/customers-service/internal/logger"
	"gitlab.com/dirk.krummacker/customers-service/internal/metrics"
	"gitlab.com/dirk.krummacker/customers-service/internal/model"
	"gitlab.com/dirk.krummacker/customers-service/internal/patch"
	"go.uber.org/zap"
)

// RouterOptions configures the ambient parts of the router.
type RouterOptions struct {
	Logger         *zap.Logger
	RequestLogging bool
	// Metrics is optional. If set, requests are measured and the registry is served on
	// MetricsPath.
	Metrics     *metrics.Collector
	MetricsPath string
}

type handlers struct {
	svc     *Service
	metrics *metrics.Collector
}

// SetupHttpRouter initializes the REST API router and registers all endpoints.
func SetupHttpRouter(svc *Service, opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	router := gin.New()
	router.Use(logger.RequestID(), logger.GinMiddleware(log, opts.RequestLogging), logger.Recovery(log))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(opts.Metrics.Handler()))
	}

	h := &handlers{svc: svc, metrics: opts.Metrics}
	router.GET("/healthz", h.health)
	router.GET("/customers", h.findCustomers)
	router.POST("/customers", h.createCustomer)
	router.GET("/customers/:id", h.findCustomerByID)
	router.PUT("/customers/:id", h.replaceCustomerByID)
	router.PATCH("/customers/:id", h.patchCustomerByID)
	router.DELETE("/customers/:id", h.deleteCustomerByID)
	return router
}

// health responds with 200 if the database is reachable and 503 otherwise.
//
// Example REST API call:
//
//	> curl http://localhost:8080/healthz
func (h *handlers) health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		logger.FromContext(c).Warn("Health check failed", zap.Error(err))
		c.IndentedJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"status": "ok"})
}

// findCustomers responds with the list of all customers as JSON, ordered by id. An empty database
// yields an empty list.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers
func (h *handlers) findCustomers(c *gin.Context) {
	customers, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, customers)
}

// findCustomerByID locates the customer whose id matches the id parameter of the request URL and
// returns it.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers/56
func (h *handlers) findCustomerByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	customer, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, customer)
}

// createRequest is the create shape plus an id field, which clients must not send. The raw value
// is kept so that even "id": null is noticed.
type createRequest struct {
	model.CustomerCreate
	Id json.RawMessage `json:"id"`
}

// createCustomer inserts the customer specified in the request's JSON into the database. It
// responds with the stored customer including the newly assigned id, and points to it in the
// Location header.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers --request "POST" --include --header "Content-Type: application/json" --data '{"name": "Erika Mustermann", "phone": 4908154711, "email": "erika@example.com"}'
func (h *handlers) createCustomer(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, apperr.Wrap(apperr.ValidationFailed, err, "invalid JSON"))
		return
	}
	if len(body.Id) > 0 {
		h.writeError(c, apperr.New(apperr.InvalidIdentifier, "id is assigned by the server and must not be sent"))
		return
	}
	customer, err := h.svc.Create(c.Request.Context(), &body.CustomerCreate)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Location", "/customers/"+strconv.FormatInt(customer.Id, 10))
	c.IndentedJSON(http.StatusCreated, customer)
}

// replaceCustomerByID overwrites all fields of the customer whose id matches the id parameter of
// the request URL. The body must carry the same id. Fields missing from the body are cleared.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers/56 --request "PUT" --include --header "Content-Type: application/json" --data '{"id": 56, "name": "Erika Mustermann", "phone": 4908154711}'
func (h *handlers) replaceCustomerByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var body model.CustomerUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, apperr.Wrap(apperr.ValidationFailed, err, "invalid JSON"))
		return
	}
	if err := h.svc.Replace(c.Request.Context(), id, &body); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// patchCustomerByID applies a list of edit operations to the customer whose id matches the id
// parameter of the request URL. Either all operations succeed, or the customer stays unchanged.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers/56 --request "PATCH" --include --header "Content-Type: application/json" --data '[{"op": "test", "path": "/name", "value": "Erika Mustermann"}, {"op": "replace", "path": "/notes", "value": "VIP"}]'
func (h *handlers) patchCustomerByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var ops []patch.Operation
	if err := c.ShouldBindJSON(&ops); err != nil {
		h.writeError(c, apperr.Wrap(apperr.InvalidPatchRequest, err, "invalid JSON"))
		return
	}
	if err := h.svc.Patch(c.Request.Context(), id, ops); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteCustomerByID deletes the customer whose id matches the id parameter of the request URL.
//
// Example REST API call:
//
//	> curl http://localhost:8080/customers/56 --request "DELETE"
func (h *handlers) deleteCustomerByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseID reads the id parameter of the request URL. It answers the request itself if the
// parameter is not a number.
func (h *handlers) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.writeError(c, apperr.New(apperr.InvalidIdentifier, "invalid id parameter %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// writeError answers the request with the status code for err. Client errors carry their kind;
// anything else is logged and reported as an internal error.
func (h *handlers) writeError(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		logger.FromContext(c).Error("Request failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
		return
	}
	if h.metrics != nil {
		h.metrics.ClientError(string(kind))
	}
	_ = c.Error(err)

	status := http.StatusBadRequest
	if kind == apperr.NotFound {
		status = http.StatusNotFound
	}
	body := gin.H{"kind": kind, "message": err.Error()}
	var opErr *patch.OperationError
	if errors.As(err, &opErr) {
		body["operation"] = opErr.Index
	}
	c.AbortWithStatusJSON(status, body)
}
