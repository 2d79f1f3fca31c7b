package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatclient/controllers"
	"chatclient/middlewares"
)

type Deps struct {
	Chat *controllers.ChatController
	Auth *controllers.AuthController
	Role string
	Log  *zap.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.Logger(d.Log), middlewares.CORS())

	v1 := r.Group("/v1")

	// queries and mutations
	v1.POST("/graphql", middlewares.Auth(d.Chat.Accounts, d.Role), d.Chat.HandleGraphQL)

	// subscriptions authenticate inside connection_init
	v1.GET("/graphql", d.Chat.HandleSubscriptions)

	v1.POST("/signin/email-password", d.Auth.SignIn)
	v1.POST("/signup/email-password", d.Auth.SignUp)

	return r
}
