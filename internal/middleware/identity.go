package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Subject returns the authenticated token subject, or "" for anonymous
// requests.
func Subject(c echo.Context) string {
	s, _ := c.Get(ctxSubject).(string)
	return s
}

// Role returns the authenticated token role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// SubjectID parses the subject as a numeric id.  Staff users and
// participants are both keyed by unsigned ids.
func SubjectID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(Subject(c), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// rateSubject identifies the caller in rate limit keys.
func rateSubject(c echo.Context) string {
	if s := Subject(c); s != "" {
		return Role(c) + ":" + s
	}
	return "anon"
}
