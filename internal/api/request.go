package api

import (
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// idParam parses a uuid path parameter, writing a 400 when it is malformed
func idParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		WriteError(c, NewValidationError("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the request body into v, writing a 400 when it is malformed.
// An empty body is accepted when optional is set.
func bindJSON(c *gin.Context, v interface{}, optional bool) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	WriteError(c, NewError("Invalid request body: "+err.Error(), ErrInvalidRequest.StatusCode, ErrInvalidRequest.Code))
	return false
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(c, NewValidationError(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteError(c, NewValidationError("invalid "+name))
		return nil, false
	}
	return &id, true
}

// queryList accepts repeated and comma separated values
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func stepParams(c *gin.Context) (jobID, stepID uuid.UUID, ok bool) {
	if jobID, ok = idParam(c, "id"); !ok {
		return
	}
	stepID, ok = idParam(c, "stepId")
	return
}
