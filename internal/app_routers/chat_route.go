package approuters

import (
	"github.com/Md-KamranQutub/chatify/internal/configuration"
	"github.com/Md-KamranQutub/chatify/internal/handler"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/api/chats", handler.AuthMiddleware(container.Verifier, container.Logger))
	{
		chatRoute.POST("/send-message", container.ChatHandler.SendMessage)
		chatRoute.GET("/conversations", container.ChatHandler.GetConversations)
		chatRoute.GET("/conversation/:conversationId/messages", container.ChatHandler.GetMessages)
		chatRoute.PUT("/mark-as-read", container.ChatHandler.MarkAsRead)
		chatRoute.DELETE("/messages/:messageId", container.ChatHandler.DeleteMessage)
	}
}

func UpdateRouters(router *gin.Engine, container *configuration.Container) {
	updateRoute := router.Group("/api/update", handler.AuthMiddleware(container.Verifier, container.Logger))
	{
		updateRoute.POST("", container.UpdateHandler.CreateUpdate)
		updateRoute.GET("", container.UpdateHandler.GetUpdates)
		updateRoute.PUT("/:updateId/view", container.UpdateHandler.ViewUpdate)
		updateRoute.DELETE("/:updateId", container.UpdateHandler.DeleteUpdate)
	}
}
