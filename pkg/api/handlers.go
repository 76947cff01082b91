package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"bombily/pkg/lifecycle"
	"bombily/pkg/models"
	"bombily/pkg/pricing"
	"bombily/pkg/realtime"
	"bombily/pkg/schedule"
	"bombily/service"
)

const (
	userHeader = "X-User-ID"
	userKey    = "user"
)

var transitionEvents = []lifecycle.Event{
	lifecycle.EventAccept,
	lifecycle.EventStart,
	lifecycle.EventArrive,
	lifecycle.EventReady,
	lifecycle.EventComplete,
	lifecycle.EventCancel,
}

// identify resolves the caller from X-User-ID. There is no authentication; the
// header is trusted as is.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(userHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing " + userHeader, Code: "unauthenticated"})
			return
		}
		user, err := s.svc.Directory().UserByID(c.Request.Context(), id)
		if errors.Is(err, service.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unknown user", Code: "unauthenticated"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

func actorOf(u *models.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Role: u.Role}
}

type resolveResponse struct {
	ScheduledTime   time.Time `json:"scheduled_time"`
	MinimumToday    time.Time `json:"minimum_today"`
	LeadTimeMinutes int       `json:"lead_time_minutes"`
}

func (s *Server) resolveSchedule(c *gin.Context) {
	var in schedule.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	now := s.now()
	at, err := s.svc.Resolver().ResolveInput(in, now)
	if err != nil {
		writeError(c, err)
		return
	}
	r := s.svc.Resolver()
	c.JSON(http.StatusOK, resolveResponse{
		ScheduledTime:   at,
		MinimumToday:    r.MinimumToday(now),
		LeadTimeMinutes: int(r.LeadTime() / time.Minute),
	})
}

type createOrderRequest struct {
	Type        string          `json:"type" binding:"required"`
	CityID      string          `json:"city_id"`
	ShopID      string          `json:"shop_id"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Comment     string          `json:"comment"`
	Schedule    *schedule.Input `json:"schedule"`
	Items       []pricing.Line  `json:"items"`
}

func (s *Server) bindCreate(c *gin.Context) (service.CreateCommand, bool) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return service.CreateCommand{}, false
	}
	user := currentUser(c)
	cityID := req.CityID
	if cityID == "" && user.CityID != nil {
		cityID = *user.CityID
	}
	return service.CreateCommand{
		Actor:       actorOf(user),
		Type:        models.OrderType(req.Type),
		CityID:      cityID,
		ShopID:      req.ShopID,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Comment:     req.Comment,
		Schedule:    req.Schedule,
		Items:       req.Items,
	}, true
}

func (s *Server) createOrder(c *gin.Context) {
	cmd, ok := s.bindCreate(c)
	if !ok {
		return
	}
	o, err := s.svc.Order().Create(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// quoteOrder prices a delivery cart the way createOrder would charge it.
func (s *Server) quoteOrder(c *gin.Context) {
	cmd, ok := s.bindCreate(c)
	if !ok {
		return
	}
	q, err := s.svc.Order().Quote(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) orderItems(c *gin.Context) {
	items, err := s.svc.Order().Items(c.Request.Context(), actorOf(currentUser(c)), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(items))
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.svc.Order().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) transition(ev lifecycle.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := s.svc.Order().Transition(c.Request.Context(), ev, service.TransitionCommand{
			OrderID: c.Param("id"),
			Actor:   actorOf(currentUser(c)),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func (s *Server) listAvailable(c *gin.Context) {
	cityID := c.Query("city_id")
	if user := currentUser(c); cityID == "" && user.CityID != nil {
		cityID = *user.CityID
	}
	if cityID == "" {
		badRequest(c, "city_id is required")
		return
	}
	orders, err := s.svc.Order().ListAvailable(c.Request.Context(), cityID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(orders))
}

func (s *Server) listMine(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	var (
		orders []*models.Order
		err    error
	)
	switch {
	case user.Role == models.RoleDriver:
		orders, err = s.svc.Order().ListByDriver(ctx, user.ID)
	case cast.ToBool(c.Query("active")):
		orders, err = s.svc.Order().ActiveByRequester(ctx, user.ID)
	default:
		orders, err = s.svc.Order().ListByRequester(ctx, user.ID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(orders))
}

func (s *Server) listRecent(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))
	orders, err := s.svc.Order().ListRecent(c.Request.Context(), actorOf(currentUser(c)), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(orders))
}

func (s *Server) deleteOrder(c *gin.Context) {
	if err := s.svc.Order().AdminDelete(c.Request.Context(), actorOf(currentUser(c)), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) bootstrap(c *gin.Context) {
	b, err := s.svc.Directory().Bootstrap(c.Request.Context(), actorOf(currentUser(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (s *Server) setRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}
	err := s.svc.Directory().SetRole(c.Request.Context(), actorOf(currentUser(c)), c.Param("id"), models.Role(req.Role))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createCity(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	city, err := s.svc.Directory().CreateCity(c.Request.Context(), actorOf(currentUser(c)), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, city)
}

type markupRequest struct {
	Percent *int `json:"markup_percent" binding:"required"`
}

func (s *Server) setMarkup(c *gin.Context) {
	var req markupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "markup_percent is required")
		return
	}
	settings, err := s.svc.Directory().SetMarkup(c.Request.Context(), actorOf(currentUser(c)), *req.Percent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type feeRequest struct {
	Fee *int `json:"delivery_fee" binding:"required"`
}

func (s *Server) setDeliveryFee(c *gin.Context) {
	var req feeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "delivery_fee is required")
		return
	}
	city, err := s.svc.Directory().SetDeliveryFee(c.Request.Context(), actorOf(currentUser(c)), c.Param("id"), *req.Fee)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, city)
}

func (s *Server) listCategories(c *gin.Context) {
	cats, err := s.svc.Directory().Categories(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(cats))
}

func (s *Server) listProducts(c *gin.Context) {
	products, err := s.svc.Directory().Products(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(products))
}

func (s *Server) listCities(c *gin.Context) {
	cities, err := s.svc.Directory().Cities(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(cities))
}

func (s *Server) listShops(c *gin.Context) {
	shops, err := s.svc.Directory().Shops(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(shops))
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.svc.Directory().Settings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

type phoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (s *Server) setPhone(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phone is required")
		return
	}
	formatted, err := s.svc.Directory().SetPhone(c.Request.Context(), currentUser(c).ID, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phone": formatted})
}

type cityRequest struct {
	CityID string `json:"city_id" binding:"required"`
}

func (s *Server) setCity(c *gin.Context) {
	var req cityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "city_id is required")
		return
	}
	if err := s.svc.Directory().SetCity(c.Request.Context(), currentUser(c).ID, req.CityID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// serveWS streams order changes the caller is allowed to see. Query filters
// may only narrow the caller's own view; admins may ask for anything.
func (s *Server) serveWS(c *gin.Context) {
	scope, err := wsScope(currentUser(c), realtime.Filter{
		CityID:   c.Query("city_id"),
		UserID:   c.Query("user_id"),
		DriverID: c.Query("driver_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.hub == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	s.hub.ServeWS(c.Writer, c.Request, scope)
}

func wsScope(u *models.User, asked realtime.Filter) (realtime.Scope, error) {
	switch u.Role {
	case models.RoleAdmin:
		return realtime.Scope{asked}, nil

	case models.RoleDriver:
		if asked.UserID != "" || (asked.DriverID != "" && asked.DriverID != u.ID) {
			return nil, service.ErrForbidden
		}
		if asked.CityID != "" && (u.CityID == nil || *u.CityID != asked.CityID) {
			return nil, service.ErrForbidden
		}
		scope := realtime.Scope{{DriverID: u.ID, CityID: asked.CityID}}
		if u.CityID != nil && asked.DriverID == "" {
			scope = append(scope, realtime.Filter{CityID: *u.CityID, Unassigned: true})
		}
		return scope, nil
	}

	if asked.DriverID != "" || (asked.UserID != "" && asked.UserID != u.ID) {
		return nil, service.ErrForbidden
	}
	return realtime.Scope{{UserID: u.ID, CityID: asked.CityID}}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
