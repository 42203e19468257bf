package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
	"github.com/hudoor/hudoor/core/session"
)

// rejection reasons
const (
	reasonMissingFields  = "missing_fields"
	reasonInvalidSession = "invalid_session"
	reasonNotEnrolled    = "not_enrolled"
	reasonNameMismatch   = "name_mismatch"
	reasonDeviceMismatch = "device_mismatch"
	reasonSaveError      = "save_error"
)

type (
	// deviceData is what the attendance page collects in the browser.
	deviceData struct {
		ScreenWidth   int     `json:"screenWidth"`
		ScreenHeight  int     `json:"screenHeight"`
		ColorDepth    int     `json:"colorDepth"`
		PixelRatio    float64 `json:"pixelRatio"`
		Language      string  `json:"language"`
		Timezone      string  `json:"timezone"`
		Platform      string  `json:"platform"`
		WebGLRenderer string  `json:"webgl_renderer"`
		WebGLVendor   string  `json:"webgl_vendor"`
	}

	// clientDeviceData accepts the device payload as a JSON object or as a JSON encoded string,
	// from both JSON and form bodies.
	clientDeviceData struct {
		fields deviceData
	}

	SubmitRequest struct {
		SessionCode string           `json:"session_code" form:"session_code" validate:"required"`
		StudentName string           `json:"student_name" form:"student_name" validate:"required"`
		StudentID   string           `json:"student_id" form:"student_id" validate:"required,studentid"`
		DeviceData  clientDeviceData `json:"client_device_data" form:"client_device_data"`
	}

	SubmitResponse struct {
		Status     string            `json:"status"`
		Reason     string            `json:"reason,omitempty"`
		Message    string            `json:"message"`
		Suggestion string            `json:"suggestion,omitempty"`
		Fields     map[string]string `json:"fields,omitempty"`
	}
)

func (d *clientDeviceData) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.UnmarshalParam(s)
	}
	return json.Unmarshal(b, &d.fields)
}

// UnmarshalParam implements echo.BindUnmarshaler for form values.
func (d *clientDeviceData) UnmarshalParam(param string) error {
	if strings.TrimSpace(param) == "" {
		return nil
	}
	return json.Unmarshal([]byte(param), &d.fields)
}

func (r *SubmitRequest) Validate(validate *validator.Validate) error {
	r.SessionCode = core.CleanString(r.SessionCode)
	r.StudentName = core.CollapseSpaces(r.StudentName)
	r.StudentID = core.CleanString(r.StudentID)
	return validate.Struct(r)
}

func (r *SubmitRequest) submission(userAgent, ip string) session.Submission {
	d := r.DeviceData.fields
	return session.Submission{
		Code:        r.SessionCode,
		StudentName: r.StudentName,
		StudentID:   r.StudentID,
		Device: device.Attributes{
			UserAgent:     userAgent,
			Platform:      d.Platform,
			WebGLRenderer: d.WebGLRenderer,
			WebGLVendor:   d.WebGLVendor,
			ScreenWidth:   d.ScreenWidth,
			ScreenHeight:  d.ScreenHeight,
			ColorDepth:    d.ColorDepth,
			PixelRatio:    d.PixelRatio,
			Language:      d.Language,
			Timezone:      d.Timezone,
			IPAddress:     ip,
		},
	}
}

func reject(reason, message string) SubmitResponse {
	return SubmitResponse{Status: "error", Reason: reason, Message: message}
}

// rejectionFor translates the domain errors of a submission into what the student sees.
func rejectionFor(err error) (int, SubmitResponse, bool) {
	cause := errors.Cause(err)
	if cause == session.ErrInvalidSession {
		return http.StatusForbidden, reject(reasonInvalidSession, "Invalid or expired session"), true
	}

	switch e := cause.(type) {
	case *roster.NotEnrolledError:
		if e.SuggestedName != "" {
			resp := reject(reasonNotEnrolled, fmt.Sprintf("Student ID incorrect. Did you mean %s?", e.SuggestedName))
			resp.Suggestion = e.SuggestedName
			return http.StatusNotFound, resp, true
		}
		return http.StatusNotFound, reject(reasonNotEnrolled, "Student not registered for today's lecture"), true
	case *roster.NameMismatchError:
		resp := reject(reasonNameMismatch, fmt.Sprintf("Student name does not match the ID. Did you mean %s?", e.Suggested))
		resp.Suggestion = e.Suggested
		return http.StatusUnprocessableEntity, resp, true
	case *device.DeviceMismatchError, *device.DeviceAlreadyBoundError:
		return http.StatusForbidden, reject(reasonDeviceMismatch, "This device is registered to another student"), true
	case *roster.SaveError:
		return http.StatusInternalServerError,
			reject(reasonSaveError, "Attendance was recorded but could not be saved, please tell your lecturer"), true
	}
	return 0, SubmitResponse{}, false
}

type attendanceApi struct {
	attendance Attendance
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func registerAttendanceAPI(e *echo.Echo, deps *Deps) {
	api := attendanceApi{
		attendance: deps.Attendance,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
	}

	e.GET("/attendance", api.form)
	e.POST("/submit_attendance", api.submit)
}

// Handlers

func (api *attendanceApi) form(ctx echo.Context) error {
	code := strings.TrimSpace(ctx.QueryParam("session"))
	if !api.attendance.Valid(code) {
		return ctx.Render(http.StatusBadRequest, "invalid", nil)
	}

	st := api.attendance.Status()
	return ctx.Render(http.StatusOK, "form", formData{Code: code, Lecture: st.Lecture, Date: st.Date})
}

func (api *attendanceApi) submit(ctx echo.Context) error {
	var data SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return ctx.JSON(http.StatusBadRequest, reject(reasonMissingFields, "Malformed form data"))
	}
	if err := data.Validate(api.validate); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validating SubmitRequest")
		}
		resp := reject(reasonMissingFields, "All fields are required")
		resp.Fields = translateFieldErrors(verrs, api.translator)
		return ctx.JSON(http.StatusBadRequest, resp)
	}

	att, err := api.attendance.Submit(ctx.Request().Context(), data.submission(ctx.Request().UserAgent(), ctx.RealIP()))
	if err != nil {
		if code, resp, ok := rejectionFor(err); ok {
			return ctx.JSON(code, resp)
		}
		return errors.Wrap(err, "submitting attendance")
	}

	return ctx.JSON(http.StatusOK, SubmitResponse{
		Status:  "success",
		Message: fmt.Sprintf("Attendance recorded for %s", att.Name),
	})
}
