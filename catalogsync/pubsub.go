package catalogsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/models"
)

func PublishSyncRun(ctx context.Context, runId uint, connectionId uint) error {
	topicName := strings.TrimSpace(os.Getenv("CATALOG_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "catalog-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if config.EnvBoolDefault("CATALOG_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(ctx, client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:        runId,
		ConnectionId: connectionId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// dispatchRun hands a queued run to the worker, in-process when CATALOG_SYNC_INLINE
// is set and through Pub/Sub otherwise. A run that cannot be published is failed so
// it can be retried.
func dispatchRun(ctx context.Context, run *models.SyncRun) error {
	payload := SyncPubSubPayload{RunId: run.ID, ConnectionId: run.ConnectionId}
	if config.SyncInline() {
		return ProcessSyncRun(ctx, payload)
	}
	if err := PublishSyncRun(ctx, run.ID, run.ConnectionId); err != nil {
		config.LogError(config.GetLogger(), "CatalogSync", "dispatchRun", "publish", payload, err)
		if db := config.GetDB(); db != nil {
			_ = failRun(ctx, db.WithContext(ctx), run, "publish_failed", err, true)
		}
		return err
	}
	return nil
}

// PubSubPushHandler always acknowledges; a failed run is recorded on the run itself.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_CATALOG_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.ConnectionId == 0 {
			c.Status(204)
			return
		}

		if err := ProcessSyncRun(c.Request.Context(), payload); err != nil {
			config.LogError(config.GetLogger(), "CatalogSync", "PubSubPushHandler", "process run", payload, err)
		}
		c.Status(204)
	}
}
