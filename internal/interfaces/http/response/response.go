package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/usecases"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error renders any error as the gateway's error envelope. A PaymentRequired
// error is special: its body is the x402 requirements document and is sent
// verbatim with status 402.
func Error(c *gin.Context, err error) {
	var payReq *usecases.PaymentRequired
	if errors.As(err, &payReq) {
		c.JSON(http.StatusPaymentRequired, payReq.Body)
		return
	}

	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = domainerrors.InternalError(err)
	}

	body := gin.H{
		"success": false,
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Detail) > 0 {
		body["detail"] = appErr.Detail
	}
	c.JSON(appErr.Status, body)
}

// ErrorWithCode sends an error response with an explicit status and code.
func ErrorWithCode(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}
