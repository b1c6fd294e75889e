package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterCharacterRoutes mounts the character endpoints on group. extra
// middleware (request validation) runs before every handler.
func RegisterCharacterRoutes(group *gin.RouterGroup, handler *CharacterHandler, extra ...gin.HandlerFunc) *gin.RouterGroup {
	charGroup := group.Group("/characters", extra...)
	{
		charGroup.GET("", handler.ListCharacters)
		charGroup.POST("", handler.CreateCharacter)
		charGroup.GET("/export", handler.ExportCharacters)
		charGroup.POST("/import", handler.ImportCharacters)
		charGroup.GET("/:id", handler.GetCharacter)
		charGroup.PATCH("/:id", handler.UpdateCharacter)
		charGroup.DELETE("/:id", handler.DeleteCharacter)
	}
	return charGroup
}
