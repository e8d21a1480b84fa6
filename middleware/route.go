package middleware

import (
	midsec "github.com/threadswap/chat-service/middleware/security"

	"github.com/gin-gonic/gin"
)

type RouteOpt struct {
	IsAuth bool
	Secret []byte
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	register(r.POST, path, handler, opt)
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	register(r.GET, path, handler, opt)
}

func DELETE(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	register(r.DELETE, path, handler, opt)
}

func register(method func(string, ...gin.HandlerFunc) gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		method(path, midsec.Middleware(midsec.Options{Secret: opt.Secret}), handler)
		return
	}
	method(path, handler)
}
