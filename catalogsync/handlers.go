package catalogsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/mmdatafocus/catalogsync_backend/unitycatalog"
	"github.com/mmdatafocus/catalogsync_backend/utils"
	"gorm.io/gorm"
)

const reportLinkTTL = 15 * time.Minute

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(c, db, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{
					Status: models.IntegrationStatusDisconnected,
				},
				Settings: DefaultSettings(),
			})
			return
		}

		resp := StatusResponse{
			Connection:        mapConnection(conn),
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Settings:          DecodeSettings(conn.SettingsJSON),
		}
		var summary RunSummary
		if ok, err := config.GetRedisObject(StatusCacheKey(conn.ID), &summary); err == nil && ok {
			resp.LastRun = &summary
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ConnectHandler registers a catalog, or refreshes the token and policy of one the
// caller already registered, after checking the catalog exists on the server.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		policy, err := reconcile.ParsePolicy(req.Policy)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		endpoint := strings.TrimRight(strings.TrimSpace(req.ServerEndpoint), "/")
		catalogName := strings.TrimSpace(req.CatalogName)

		if config.EnvBoolDefault("CATALOG_SYNC_VERIFY_CONNECT", true) {
			client, err := unitycatalog.NewClient(endpoint, req.Token, unitycatalog.WithRateLimit(config.UnityCatalogRatePerSecond()))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, err := client.GetCatalog(c.Request.Context(), catalogName); err != nil {
				if errors.Is(err, reconcile.ErrResourceNotFound) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "catalog not found: " + catalogName})
					return
				}
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var conn models.CatalogConnection
		err = db.Where("owner = ? AND provider = ? AND server_endpoint = ? AND catalog_name = ?",
			username, models.IntegrationProviderUnityCatalog, endpoint, catalogName).
			Take(&conn).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			conn = models.CatalogConnection{
				Provider:       models.IntegrationProviderUnityCatalog,
				Owner:          username,
				Status:         models.IntegrationStatusConnected,
				ServerEndpoint: endpoint,
				CatalogName:    catalogName,
				AuthToken:      req.Token,
				Policy:         policy.String(),
				SettingsJSON:   EncodeSettings(DefaultSettings()),
			}
			if err := db.Create(&conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			if err := db.Model(&conn).Updates(map[string]interface{}{
				"status":     models.IntegrationStatusConnected,
				"auth_token": req.Token,
				"policy":     policy.String(),
				"updated_at": time.Now(),
			}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "id": conn.ID})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(c, db, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":     models.IntegrationStatusDisconnected,
			"auth_token": "",
			"updated_at": time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey(StatusCacheKey(conn.ID))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(c, db, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unity catalog is not connected"})
			return
		}

		update := map[string]interface{}{
			"settings_json": EncodeSettings(req.Settings),
			"updated_at":    time.Now(),
		}
		if req.Policy != nil {
			policy, err := reconcile.ParsePolicy(*req.Policy)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			update["policy"] = policy.String()
		}
		if err := db.Model(conn).Updates(update).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// TriggerSyncHandler queues a run with the connection's current policy and settings.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(c, db, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.IntegrationStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "unity catalog is not connected"})
			return
		}

		run := models.SyncRun{
			ConnectionId: conn.ID,
			Provider:     conn.Provider,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredManual,
			Policy:       conn.Policy,
			DryRun:       req.DryRun,
			SettingsJSON: EncodeSettings(DecodeSettings(conn.SettingsJSON)),
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = dispatchRun(c.Request.Context(), &run)

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(c, db, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, SyncHistoryResponse{Items: []SyncRunResponse{}})
			return
		}

		var runs []models.SyncRun
		if err := db.Where("connection_id = ?", conn.ID).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		run, err := getOwnedRun(c, db, username, uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		var items []models.SyncRunItem
		if err := db.Where("sync_run_id = ?", run.ID).Order("id").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var errs []models.SyncError
		if err := db.Where("sync_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Items:           mapItems(items),
			Errors:          mapErrors(errs),
		}
		if bucket := config.SyncReportBucket(); bucket != "" && run.ReportObject != "" {
			signed, err := utils.SignDownload(c.Request.Context(), bucket, run.ReportObject, reportLinkTTL)
			if err != nil {
				config.LogError(config.GetLogger(), "catalogsync", "SyncRunDetailHandler", "sign report", run.ReportObject, err)
			} else {
				resp.Report = signed
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := resolveUsername(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		run, err := getOwnedRun(c, db, username, uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if !isTerminalStatus(run.Status) {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not finished"})
			return
		}

		newRun := models.SyncRun{
			ConnectionId: run.ConnectionId,
			Provider:     run.Provider,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredRetry,
			Policy:       run.Policy,
			DryRun:       run.DryRun,
			SettingsJSON: run.SettingsJSON,
			ParentRunId:  &run.ID,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = dispatchRun(c.Request.Context(), &newRun)

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// ListConnectionsHandler lists every Unity Catalog connection, optionally
// filtered by ?status=.
func ListConnectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())
		query := db.Where("provider = ?", models.IntegrationProviderUnityCatalog)
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			query = query.Where("status = ?", status)
		}
		var conns []models.CatalogConnection
		if err := query.Order("id ASC").Find(&conns).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]ConnectionResponse, 0, len(conns))
		for i := range conns {
			resp := mapConnection(&conns[i])
			resp.Owner = conns[i].Owner
			resp.LastSyncAt = formatTime(conns[i].LastSyncAt)
			out = append(out, resp)
		}
		c.JSON(http.StatusOK, gin.H{"items": out})
	}
}

func resolveUsername(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", utils.ErrorUnauthorized
	}
	return username, nil
}

func isAdmin(c *gin.Context) bool {
	admin, ok := utils.GetIsAdminFromContext(c.Request.Context())
	return ok && admin
}

// getConnection returns the connection named by ?connection_id=, or the caller's
// most recent one. A connection of another owner is reported as absent unless the
// caller is an admin.
func getConnection(c *gin.Context, db *gorm.DB, username string) (*models.CatalogConnection, error) {
	var conn models.CatalogConnection
	query := db.Where("provider = ?", models.IntegrationProviderUnityCatalog)
	if v := strings.TrimSpace(c.Query("connection_id")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, nil
		}
		query = query.Where("id = ?", id)
		if !isAdmin(c) {
			query = query.Where("owner = ?", username)
		}
	} else {
		query = query.Where("owner = ?", username).Order("id desc")
	}
	if err := query.Take(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func getOwnedRun(c *gin.Context, db *gorm.DB, username string, id uint) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := db.Where("id = ?", id).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if isAdmin(c) {
		return &run, nil
	}
	var count int64
	if err := db.Model(&models.CatalogConnection{}).
		Where("id = ? AND owner = ?", run.ConnectionId, username).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return &run, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapConnection(conn *models.CatalogConnection) ConnectionResponse {
	return ConnectionResponse{
		ID:             conn.ID,
		Status:         conn.Status,
		ServerEndpoint: conn.ServerEndpoint,
		CatalogName:    conn.CatalogName,
		Policy:         conn.Policy,
		CatalogGUID:    conn.CatalogGUID,
	}
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	counts := map[string]int{}
	_ = utils.UnmarshalFromJSON(run.StatsJSON, &counts)
	return SyncRunResponse{
		ID:            run.ID,
		ConnectionId:  run.ConnectionId,
		Status:        run.Status,
		Policy:        run.Policy,
		DryRun:        run.DryRun,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		ActionCount:   run.ActionCount,
		MismatchCount: run.MismatchCount,
		ErrorCount:    run.ErrorCount,
		Counts:        counts,
		TriggeredBy:   run.TriggeredBy,
		ParentRunId:   run.ParentRunId,
		ReportObject:  run.ReportObject,
	}
}

func mapItems(items []models.SyncRunItem) []SyncRunItemResponse {
	out := make([]SyncRunItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, SyncRunItemResponse{
			Kind:          item.Kind,
			FullName:      item.FullName,
			QualifiedName: item.QualifiedName,
			EntityGUID:    item.EntityGUID,
			Action:        item.Action,
			Reason:        item.Reason,
			Mismatch:      item.Mismatch,
			Error:         item.Error,
		})
	}
	return out
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:        errItem.ID,
			Kind:      errItem.Kind,
			FullName:  errItem.FullName,
			Action:    errItem.Action,
			ErrorCode: errItem.ErrorCode,
			Message:   errItem.Message,
			Retryable: errItem.Retryable,
		})
	}
	return out
}
