package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-location-tracker/internal/common"
	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/geocode"
	"github.com/i474232898/weather-location-tracker/internal/localtime"
	"github.com/i474232898/weather-location-tracker/internal/scheduler"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
	"github.com/i474232898/weather-location-tracker/internal/units"
	"github.com/i474232898/weather-location-tracker/internal/view"
)

var validate = validator.New()

// Deps are the services the HTTP API reads from and drives.
type Deps struct {
	Tracker   *tracking.Tracker
	Forecasts *forecast.Repository
	Scheduler *scheduler.Scheduler
	Settings  *units.Settings
	Formatter *localtime.Formatter
	// Geocoder is optional; without it new locations need coordinates.
	Geocoder geocode.Geocoder
	Clock    clock.Clock
	// RefreshTimeout bounds a manual refresh.
	RefreshTimeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Clock == nil {
		d.Clock = clock.NewClock()
	}
	if d.RefreshTimeout <= 0 {
		d.RefreshTimeout = 30 * time.Second
	}
	h := &handlers{Deps: d}

	v1 := app.Group("/api/v1")

	v1.Get("/locations", h.listLocations)
	v1.Post("/locations", h.addLocation)
	v1.Put("/locations/order", h.reorderLocations)
	v1.Get("/locations/:id", h.getLocation)
	v1.Delete("/locations/:id", h.removeLocation)
	v1.Post("/locations/:id/refresh", h.refreshLocation)

	v1.Get("/settings/units", h.getUnits)
	v1.Put("/settings/units", h.updateUnits)

	v1.Get("/schedules", h.listSchedules)
}

type handlers struct {
	Deps
}

func (h *handlers) project(loc tracking.Location) view.LocationView {
	var entry *forecast.Entry
	if e, ok := h.Forecasts.Get(loc.ID); ok {
		entry = &e
	}
	return view.Build(loc, entry, h.Settings.Get(), h.Formatter, h.Clock.Now())
}

func (h *handlers) listLocations(c *fiber.Ctx) error {
	locs := h.Tracker.List()
	views := make([]view.LocationView, 0, len(locs))
	for _, loc := range locs {
		views = append(views, h.project(loc))
	}
	return c.JSON(fiber.Map{
		"units":     h.Settings.Get(),
		"locations": views,
	})
}

func (h *handlers) getLocation(c *fiber.Ctx) error {
	loc, err := h.Tracker.Get(c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(h.project(loc))
}

// addLocationRequest names a place and optionally its coordinates.
type addLocationRequest struct {
	Name      string   `json:"name" validate:"required,max=120"`
	AdminArea string   `json:"adminArea" validate:"max=120"`
	Country   string   `json:"country" validate:"max=120"`
	Lat       *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon       *float64 `json:"lon" validate:"omitempty,longitude"`
}

func (h *handlers) addLocation(c *fiber.Ctx) error {
	var req addLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon must be given together")
	}

	ctx := requestContext(c)
	loc := tracking.Location{
		DisplayName: req.Name,
		AdminArea:   req.AdminArea,
		Country:     req.Country,
	}

	if req.Lat != nil && req.Lon != nil {
		loc.Coordinates = tracking.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	} else {
		if h.Geocoder == nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lon are required when geocoding is not configured")
		}
		place, err := h.Geocoder.Lookup(ctx, geocode.Query{Name: req.Name, AdminArea: req.AdminArea, Country: req.Country})
		if err != nil {
			return toHTTPError(err)
		}
		loc.Coordinates = tracking.Coordinates{Lat: place.Lat, Lon: place.Lon}
		if loc.AdminArea == "" {
			loc.AdminArea = place.AdminArea
		}
		if loc.Country == "" {
			loc.Country = place.Country
		}
	}

	if err := validate.Struct(loc.Coordinates); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	added, err := h.Tracker.OnLocationAdded(ctx, loc)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.project(added))
}

func (h *handlers) removeLocation(c *fiber.Ctx) error {
	if err := h.Tracker.OnLocationRemoved(requestContext(c), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids" validate:"required,dive,required"`
}

func (h *handlers) reorderLocations(c *fiber.Ctx) error {
	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.Tracker.OnLocationsReordered(requestContext(c), req.IDs); err != nil {
		return toHTTPError(err)
	}
	return h.listLocations(c)
}

func (h *handlers) refreshLocation(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx, cancel := context.WithTimeout(requestContext(c), h.RefreshTimeout)
	defer cancel()

	if err := h.Tracker.RefreshNow(ctx, id); err != nil {
		return toHTTPError(err)
	}

	loc, err := h.Tracker.Get(id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(h.project(loc))
}

func (h *handlers) getUnits(c *fiber.Ctx) error {
	return c.JSON(h.Settings.Get())
}

// unitsRequest changes only the kinds it names.
type unitsRequest struct {
	Temperature   *units.TemperatureUnit   `json:"temperature"`
	Speed         *units.SpeedUnit         `json:"speed"`
	Precipitation *units.PrecipitationUnit `json:"precipitation"`
	Distance      *units.DistanceUnit      `json:"distance"`
}

func (h *handlers) updateUnits(c *fiber.Ctx) error {
	var req unitsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid units: %v", err))
	}

	selected, err := h.Settings.Update(func(s *units.SelectedUnits) {
		if req.Temperature != nil {
			s.Temperature = *req.Temperature
		}
		if req.Speed != nil {
			s.Speed = *req.Speed
		}
		if req.Precipitation != nil {
			s.Precipitation = *req.Precipitation
		}
		if req.Distance != nil {
			s.Distance = *req.Distance
		}
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(selected)
}

func (h *handlers) listSchedules(c *fiber.Ctx) error {
	if h.Scheduler == nil {
		return c.JSON([]scheduler.Scheduled{})
	}
	return c.JSON(h.Scheduler.Scheduled())
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		ctx = common.WithRequestID(ctx, id)
	}
	return ctx
}

// toHTTPError maps domain errors onto HTTP status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, tracking.ErrDuplicateLocation):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, tracking.ErrInvalidOrder),
		errors.Is(err, tracking.ErrInvalidCoordinates),
		errors.Is(err, units.ErrUnsupportedUnit),
		errors.Is(err, geocode.ErrEmptyQuery):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, geocode.ErrNoResults):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrRefreshFailure):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
