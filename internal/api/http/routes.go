package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/favorites"
	"github.com/i474232898/weather-favorites/internal/forecast"
	"github.com/i474232898/weather-favorites/internal/graph"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/weather"
)

var validate = validator.New()

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Service   *forecast.Service
	Favorites *favorites.Store
	// CleanupMaxAge is used by POST /cache/cleanup when maxAge is omitted.
	CleanupMaxAge time.Duration
}

type handlers struct {
	Deps
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	h := handlers{d}
	v1 := app.Group("/api/v1")

	v1.Get("/locations/search", h.searchLocations)

	v1.Get("/favorites", h.listFavorites)
	v1.Post("/favorites", h.addFavorite)
	v1.Delete("/favorites", h.removeFavorite)
	v1.Post("/favorites/move", h.moveFavorite)
	v1.Get("/favorites/check", h.checkFavorite)

	v1.Get("/onboarding", h.onboardingStatus)
	v1.Post("/onboarding", h.completeOnboarding)

	v1.Get("/forecast", h.getForecast)
	v1.Get("/graph", h.getGraph)

	v1.Get("/cache/stats", h.cacheStats)
	v1.Delete("/cache/graphs", h.invalidateGraphs)
	v1.Post("/cache/cleanup", h.cleanupGraphs)
	v1.Delete("/cache", h.clearCache)
}

func (h handlers) searchLocations(c *fiber.Ctx) error {
	q := searchQuery{Q: c.Query("q")}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	places, err := h.Service.SearchPlaces(c.UserContext(), q.Q)
	if err != nil {
		return err
	}
	if places == nil {
		places = []weather.Place{}
	}
	return c.JSON(fiber.Map{"query": q.Q, "places": places})
}

func (h handlers) listFavorites(c *fiber.Ctx) error {
	list, err := h.Favorites.List(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []favorites.Location{}
	}
	return c.JSON(fiber.Map{"favorites": list})
}

func (h handlers) addFavorite(c *fiber.Ctx) error {
	var loc favorites.Location
	if err := c.BodyParser(&loc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	added, err := h.Favorites.Add(c.UserContext(), loc)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if added {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"added": added,
		"key":   loc.LocationKey(),
	})
}

func (h handlers) removeFavorite(c *fiber.Ctx) error {
	q, err := parsePlaceQuery(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := h.Favorites.Remove(c.UserContext(), q.toFavorite()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h handlers) moveFavorite(c *fiber.Ctx) error {
	q, err := parsePlaceQuery(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	switch c.Query("direction") {
	case "up":
		err = h.Favorites.MoveUp(ctx, q.toFavorite())
	case "down":
		err = h.Favorites.MoveDown(ctx, q.toFavorite())
	default:
		return fiber.NewError(fiber.StatusBadRequest, "direction must be up or down")
	}
	if err != nil {
		return err
	}
	return h.listFavorites(c)
}

func (h handlers) checkFavorite(c *fiber.Ctx) error {
	q, err := parsePlaceQuery(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	loc := q.toFavorite()
	ok, err := h.Favorites.IsFavorite(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"key": loc.LocationKey(), "favorite": ok})
}

func (h handlers) onboardingStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"firstTimeUser": h.Favorites.IsFirstTimeUser(c.UserContext())})
}

func (h handlers) completeOnboarding(c *fiber.Ctx) error {
	if err := h.Favorites.MarkSeen(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"firstTimeUser": false})
}

func (h handlers) getForecast(c *fiber.Ctx) error {
	q, err := parsePlaceQuery(c, true)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	key := q.key()
	fc, err := h.Service.Forecast(c.UserContext(), key, q.Lat, q.Lon)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location": key,
		"forecast": fc,
		"days":     weather.SummarizeDays(fc.Series),
	})
}

func (h handlers) getGraph(c *fiber.Ctx) error {
	q, err := parsePlaceQuery(c, true)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	gq := graphQuery{
		Mode:    c.Query("mode"),
		Date:    c.Query("date"),
		Palette: c.Query("palette"),
		Hours:   c.QueryInt("hours", forecast.DefaultHours),
	}
	if err := validate.Struct(gq); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	md, err := h.Service.Graph(c.UserContext(), forecast.GraphRequest{
		ID:      q.ID,
		Name:    q.Name,
		Lat:     q.Lat,
		Lon:     q.Lon,
		Mode:    graph.Mode(gq.Mode),
		Date:    gq.Date,
		Palette: graph.Palette(gq.Palette),
		Hours:   gq.Hours,
		Force:   c.QueryBool("force", false),
	})
	if err != nil {
		return err
	}

	if c.Accepts(fiber.MIMEApplicationJSON, "text/markdown") == "text/markdown" {
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(md)
	}
	return c.JSON(fiber.Map{"location": q.key(), "markdown": md})
}

func (h handlers) cacheStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	return c.JSON(fiber.Map{
		"cache":  h.Service.Cache().Stats(ctx),
		"graphs": h.Service.Graphs().Stats(ctx),
	})
}

func (h handlers) invalidateGraphs(c *fiber.Ctx) error {
	ctx := c.UserContext()
	graphs := h.Service.Graphs()

	var removed int
	switch {
	case c.QueryBool("all", false):
		removed = graphs.ClearAll(ctx)
	case c.Query("location") != "":
		removed = graphs.InvalidateLocation(ctx, location.Resolve(c.Query("location"), 0, 0))
	case c.Query("mode") != "":
		mode := graph.Mode(c.Query("mode"))
		if !mode.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "mode must be detailed or summary")
		}
		removed = graphs.InvalidateMode(ctx, mode)
	case c.Query("date") != "":
		date := c.Query("date")
		if _, err := time.Parse(weather.DateLayout, date); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		removed = graphs.InvalidateDate(ctx, date)
	default:
		return fiber.NewError(fiber.StatusBadRequest, "one of location, mode, date or all=true is required")
	}
	return c.JSON(fiber.Map{"removed": removed})
}

func (h handlers) cleanupGraphs(c *fiber.Ctx) error {
	maxAge := h.CleanupMaxAge
	if s := c.Query("maxAge"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "maxAge must be a positive duration such as 24h")
		}
		maxAge = d
	}
	removed := h.Service.Graphs().Cleanup(c.UserContext(), maxAge)
	return c.JSON(fiber.Map{"removed": removed, "maxAge": maxAge.String()})
}

func (h handlers) clearCache(c *fiber.Ctx) error {
	prefix := c.Query("prefix")
	if prefix == "" && !c.QueryBool("all", false) {
		return fiber.NewError(fiber.StatusBadRequest, "prefix or all=true is required")
	}
	if prefix != "" && !knownPrefix(prefix) {
		return fiber.NewError(fiber.StatusBadRequest, "unknown cache prefix")
	}
	removed := h.Service.Cache().ClearByPrefix(c.UserContext(), prefix)
	return c.JSON(fiber.Map{"removed": removed, "prefix": prefix})
}

func knownPrefix(p string) bool {
	for _, known := range []string{cache.PrefixWeather, cache.PrefixSunrise, cache.PrefixGraph, cache.PrefixLocation} {
		if strings.HasPrefix(p, known) {
			return true
		}
	}
	return false
}

type searchQuery struct {
	Q string `validate:"required,max=200"`
}

type graphQuery struct {
	Mode    string `validate:"omitempty,oneof=detailed summary"`
	Date    string `validate:"omitempty,datetime=2006-01-02"`
	Palette string `validate:"omitempty,oneof=light dark"`
	Hours   int    `validate:"gte=1,lte=240"`
}

// placeQuery identifies a place by id, coordinates or both.
type placeQuery struct {
	ID        string
	Name      string
	Lat       float64 `validate:"latitude"`
	Lon       float64 `validate:"longitude"`
	hasCoords bool
}

func (q placeQuery) key() location.Key {
	return location.Resolve(q.ID, q.Lat, q.Lon)
}

func (q placeQuery) toFavorite() favorites.Location {
	return favorites.Location{ID: q.ID, Name: q.Name, Lat: q.Lat, Lon: q.Lon}
}

func parsePlaceQuery(c *fiber.Ctx, requireCoords bool) (placeQuery, error) {
	q := placeQuery{
		ID:   c.Query("id"),
		Name: c.Query("name"),
	}

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr != "" || lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return q, errors.New("lat must be a number")
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return q, errors.New("lon must be a number")
		}
		q.Lat, q.Lon, q.hasCoords = lat, lon, true
	}

	switch {
	case requireCoords && !q.hasCoords:
		return q, errors.New("lat and lon are required")
	case !q.hasCoords && q.ID == "":
		return q, errors.New("id or lat and lon are required")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
