package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"deploy-orchestrator-backend/internal/logger"
)

// Step is one named stage in the deployment progress display.
type Step struct {
	Name      string `json:"name"`
	Current   bool   `json:"current"`
	Completed bool   `json:"completed"`
}

// Event is an immutable progress update pushed to clients watching a
// deployment. Construct events with the New* helpers; never mutate one
// after handing it to a Broadcaster.
type Event struct {
	AppID       string  `json:"app_id"`
	AttemptID   string  `json:"attempt_id"`
	Environment string  `json:"environment"`
	Status      string  `json:"status"`
	Phase       string  `json:"phase"`
	Progress    float64 `json:"progress"` // 0.0 to 1.0
	Steps       []Step  `json:"steps,omitempty"`
	URL         string  `json:"url,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// deploySteps is the canonical step sequence shown for a full deployment.
var deploySteps = []string{"validate", "sync", "build", "deploy"}

// NewProgress builds a progress event with the step list marked according
// to the active phase.
func NewProgress(appID, attemptID, environment, status, phase string, progress float64) Event {
	steps := make([]Step, len(deploySteps))
	reached := false
	for i, name := range deploySteps {
		if name == phase {
			steps[i] = Step{Name: name, Current: true}
			reached = true
		} else {
			steps[i] = Step{Name: name, Completed: !reached}
		}
	}
	return Event{
		AppID:       appID,
		AttemptID:   attemptID,
		Environment: environment,
		Status:      status,
		Phase:       phase,
		Progress:    progress,
		Steps:       steps,
	}
}

// NewCompleted builds the terminal success event carrying the live URL.
func NewCompleted(appID, attemptID, environment, url string) Event {
	ev := NewProgress(appID, attemptID, environment, "completed", "", 1.0)
	for i := range ev.Steps {
		ev.Steps[i].Completed = true
	}
	ev.URL = url
	return ev
}

// NewFailed builds a terminal failure event. The status distinguishes
// failed from timed_out.
func NewFailed(appID, attemptID, environment, status, phase string, err error) Event {
	ev := NewProgress(appID, attemptID, environment, status, phase, 0)
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Broadcaster delivers deployment progress events to interested clients.
// Delivery is best effort; a failed broadcast never fails a deployment.
type Broadcaster interface {
	Publish(ctx context.Context, event Event)
}

// RedisBroadcaster publishes events as JSON on a per-app redis channel,
// where websocket gateways fan them out to browsers.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func channelFor(appID string) string {
	return fmt.Sprintf("deploy:events:%s", appID)
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithContext(ctx).Errorf("marshaling broadcast event: %v", err)
		return
	}
	if err := b.client.Publish(ctx, channelFor(event.AppID), payload).Err(); err != nil {
		logger.WithContext(ctx).Warnf("publishing deployment event for app %s: %v", event.AppID, err)
	}
}

// NopBroadcaster drops all events. Used in tests and when no redis is
// configured.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, Event) {}
