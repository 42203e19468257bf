package echoapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hudoor/hudoor/core/session"
)

const operatorTokenHeader = "X-Operator-Token"

type (
	ReportResponse struct {
		Code      string             `json:"code"`
		Lecture   string             `json:"lecture"`
		Date      string             `json:"date"`
		EndedAt   time.Time          `json:"ended_at"`
		Total     int                `json:"total"`
		Present   int                `json:"present"`
		Absent    int                `json:"absent"`
		Swept     int                `json:"swept"`
		Fallback  bool               `json:"fallback"`
		Attendees []session.Attendee `json:"attendees"`
	}

	operatorApi struct {
		attendance Attendance
	}
)

func newReportResponse(rep session.Report) ReportResponse {
	attendees := rep.Attendees
	if attendees == nil {
		attendees = []session.Attendee{}
	}
	return ReportResponse{
		Code:      rep.Code,
		Lecture:   rep.Lecture,
		Date:      rep.Date.Format("2006-01-02"),
		EndedAt:   rep.EndedAt,
		Total:     rep.Summary.Total,
		Present:   rep.Summary.Present,
		Absent:    rep.Summary.Absent,
		Swept:     rep.Swept,
		Fallback:  rep.Save.Fallback,
		Attendees: attendees,
	}
}

// operatorAuth only lets requests carrying the configured operator token through. Nothing gets
// through when no token is configured.
func operatorAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + operatorTokenHeader,
		Validator: func(key string, ctx echo.Context) (bool, error) {
			if token == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, ctx echo.Context) error {
			return errInvalidOperatorToken
		},
	})
}

func registerOperatorAPI(e *echo.Echo, deps *Deps) {
	api := operatorApi{attendance: deps.Attendance}

	g := e.Group("/session", operatorAuth(deps.Conf.Operator.Token))
	g.GET("", api.status)
	g.POST("/end", api.end)
}

// Handlers

func (api *operatorApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.attendance.Status())
}

func (api *operatorApi) end(ctx echo.Context) error {
	if api.attendance.Status().Ended {
		return errSessionEnded
	}
	rep, err := api.attendance.End(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "ending session")
	}
	return ctx.JSON(http.StatusOK, newReportResponse(rep))
}
