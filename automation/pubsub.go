package automation

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/kev-hfmn/review-reply-app-sub003/appctx"
	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
)

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SlotRunPayload struct {
	Slot string `json:"slot"`
}

// PublishSlotRun enqueues a slot run. Cloud Scheduler publishes to the same topic; this
// path exists for ops-triggered reruns.
func PublishSlotRun(ctx context.Context, slot models.ScheduleSlot) error {
	topicName := strings.TrimSpace(os.Getenv("AUTOMATION_SLOT_TOPIC"))
	if topicName == "" {
		topicName = "automation-slot"
	}

	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if utils.BoolFromEnv("AUTOMATION_SLOT_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(SlotRunPayload{Slot: string(slot)})
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// SlotPushHandler receives the Pub/Sub push for a scheduled slot and runs the batch.
// Malformed envelopes are acked with 204 so the subscription never retries garbage.
func SlotPushHandler(orchestrator *Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.BoolFromEnv("ENABLE_AUTOMATION_PUSH_ENDPOINT", true) {
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

		var payload SlotRunPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if !models.ValidScheduleSlot(payload.Slot) {
			c.Status(204)
			return
		}

		// The batch spans tenants, so the per-request tenant scope must not apply.
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeySkipTenantScope, true)
		if _, err := orchestrator.RunSlot(ctx, models.ScheduleSlot(payload.Slot)); err != nil {
			config.LogError(config.GetLogger(), "automation", "SlotPushHandler", "run slot", payload.Slot, err)
		}
		c.Status(204)
	}
}
