package httperr

import (
	"github.com/gin-gonic/gin"
)

type Response struct {
	Status int `json:"-"`
	Error  struct {
		Message string `json:"message"`
		Reason  string `json:"reason,omitempty"`
	} `json:"error"`
	Detail any `json:"detail,omitempty"`
}

// preserves original error for future monitoring
func AbortWithError(c *gin.Context, status int, err error, msg string, detail any) {
	abort(c, Response{Status: status}, err, msg, "", detail)
}

// AbortWithReason attaches the machine-readable rejection reason alongside
// the human-readable message.
func AbortWithReason(c *gin.Context, status int, err error, msg string, reason string) {
	abort(c, Response{Status: status}, err, msg, reason, nil)
}

func abort(c *gin.Context, resp Response, err error, msg, reason string, detail any) {
	resp.Error.Message = msg
	resp.Error.Reason = reason
	resp.Detail = detail

	if err != nil {
		_ = c.Error(gin.Error{
			Err:  err,
			Type: gin.ErrorTypePublic,
			Meta: resp,
		})
	}
	c.AbortWithStatusJSON(resp.Status, resp)
}
