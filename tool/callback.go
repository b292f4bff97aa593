package tool

import "github.com/gin-gonic/gin"

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"status": "ok",
		"data":   data,
	}
}

// FastReturnInfo is a success that carries an operator-facing note,
// e.g. that the device is about to become unreachable.
func FastReturnInfo(msg string) gin.H {
	return gin.H{
		"status": "ok",
		"info":   msg,
	}
}
