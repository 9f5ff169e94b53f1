package catalogsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/utils"
)

type EntityDetailResponse struct {
	Entity          *models.CatalogEntity         `json:"entity"`
	Properties      map[string]string             `json:"properties"`
	Classifications []models.EntityClassification `json:"classifications"`
	Relationships   []models.EntityRelationship   `json:"relationships"`
}

// ListEntitiesHandler pages through entities with ?type=, ?parent=, ?cursor= and
// ?limit=.
func ListEntitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		after, err := models.DecodeIDCursor(strings.TrimSpace(c.Query("cursor")))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit := 100
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
				limit = n
			}
		}

		entities, err := models.ListCatalogEntities(c.Request.Context(), config.GetDB(), models.CatalogEntityFilter{
			TypeName:   strings.TrimSpace(c.Query("type")),
			ParentGUID: strings.TrimSpace(c.Query("parent")),
			After:      after,
			Limit:      limit,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		next := ""
		if len(entities) == limit {
			next = models.EncodeIDCursor(entities[len(entities)-1].ID)
		}
		if entities == nil {
			entities = []models.CatalogEntity{}
		}
		c.JSON(http.StatusOK, EntityListResponse{Items: entities, NextCursor: next})
	}
}

func GetEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := c.Request.Context()
		db := config.GetDB()
		guid := c.Param("guid")

		entity, err := models.GetCatalogEntity(ctx, db, guid)
		if err != nil {
			respondEntityError(c, err)
			return
		}
		classifications, err := models.GetEntityClassifications(ctx, db, guid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		relationships, err := models.GetEntityRelationships(ctx, db, guid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, EntityDetailResponse{
			Entity:          entity,
			Properties:      utils.DecodeStringMap(entity.PropertiesJSON),
			Classifications: classifications,
			Relationships:   relationships,
		})
	}
}

func CreateEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewCatalogEntity
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		entity, err := models.CreateCatalogEntity(c.Request.Context(), config.GetDB(), &input)
		if err != nil {
			respondEntityError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entity)
	}
}

// UpdateEntityHandler merges the body into the entity. ?replace=true overwrites
// every field instead.
func UpdateEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.CatalogEntityUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		var (
			entity *models.CatalogEntity
			err    error
		)
		if c.Query("replace") == "true" {
			entity, err = models.ReplaceCatalogEntity(ctx, config.GetDB(), c.Param("guid"), &input)
		} else {
			entity, err = models.MergeCatalogEntity(ctx, config.GetDB(), c.Param("guid"), &input)
		}
		if err != nil {
			respondEntityError(c, err)
			return
		}
		c.JSON(http.StatusOK, entity)
	}
}

func DeleteEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.DeleteCatalogEntity(c.Request.Context(), config.GetDB(), c.Param("guid")); err != nil {
			respondEntityError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type ClassificationInput struct {
	Name       string            `json:"name" binding:"required"`
	Properties map[string]string `json:"properties"`
}

func ListClassificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := c.Request.Context()
		guid := c.Param("guid")
		if _, err := models.GetCatalogEntity(ctx, config.GetDB(), guid); err != nil {
			respondEntityError(c, err)
			return
		}
		classifications, err := models.GetEntityClassifications(ctx, config.GetDB(), guid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if classifications == nil {
			classifications = []models.EntityClassification{}
		}
		c.JSON(http.StatusOK, classifications)
	}
}

// AddClassificationHandler classifies an entity. Classifying a template also
// classifies every entity later created from it.
func AddClassificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolveUsername(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input ClassificationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		classification, err := models.AddEntityClassification(c.Request.Context(), config.GetDB(), c.Param("guid"), input.Name, input.Properties)
		if err != nil {
			respondEntityError(c, err)
			return
		}
		c.JSON(http.StatusCreated, classification)
	}
}

func respondEntityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrEntityExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidEntity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RegisterRoutes mounts the integration routes on api and the entity routes on
// entities.
func RegisterRoutes(api *gin.RouterGroup, entities *gin.RouterGroup) {
	api.GET("/status", StatusHandler())
	api.POST("/connect", ConnectHandler())
	api.POST("/disconnect", DisconnectHandler())
	api.PUT("/settings", UpdateSettingsHandler())
	api.POST("/sync", TriggerSyncHandler())
	api.GET("/sync-runs", SyncHistoryHandler())
	api.GET("/sync-runs/:id", SyncRunDetailHandler())
	api.POST("/sync-runs/:id/retry", RetrySyncRunHandler())

	entities.GET("", ListEntitiesHandler())
	entities.POST("", CreateEntityHandler())
	entities.GET("/:guid", GetEntityHandler())
	entities.PATCH("/:guid", UpdateEntityHandler())
	entities.DELETE("/:guid", DeleteEntityHandler())
	entities.GET("/:guid/classifications", ListClassificationsHandler())
	entities.POST("/:guid/classifications", AddClassificationHandler())
}

// RegisterAdminRoutes mounts the cross-owner views. The group must already be
// restricted to admins.
func RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/connections", ListConnectionsHandler())
}
