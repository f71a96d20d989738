package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_kart/internal/transport"
	"github.com/Skotchmaster/online_kart/internal/util"
	middleware "github.com/Skotchmaster/online_kart/pkg/middleware/auth"
)

var errUnauthorized = errors.New("unauthorized")

func GetID(c echo.Context) (uuid.UUID, error) {
	s, ok := c.Get(middleware.UserIDKey).(string)
	if !ok || s == "" {
		return uuid.Nil, errUnauthorized
	}
	userID, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errUnauthorized
	}
	return userID, nil
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || v == 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return uint(v), nil
}

type pager struct {
	page, offset, limit int
}

func pageFromQuery(c echo.Context, defSize int) pager {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), defSize)
	offset, limit := util.Calculate(page, size, defSize)
	if page < 1 {
		page = 1
	}
	return pager{page: page, offset: offset, limit: limit}
}

// ErrorHandler renders every error as {"detail": ...}. Anything that is not an *echo.HTTPError
// becomes a bare 500 so storage details stay out of responses.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			detail = msg
		} else {
			detail = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, transport.ErrorResponse{Detail: detail})
}
