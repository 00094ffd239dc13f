package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreditGate/app/models"
	"github.com/ManuelReschke/CreditGate/internal/pkg/billing"
)

const (
	HeaderSecret    = "X-Digital-Employee-Secret"
	HeaderSignature = "X-Signature-HMAC"
	HeaderEventType = "X-Event-Type"
	HeaderDispatch  = "X-Dispatch-ID"
)

// Envelope is the JSON body sent to outgoing destinations.
type Envelope struct {
	Event       string          `json:"event"`
	Timestamp   time.Time       `json:"timestamp"`
	WorkspaceID string          `json:"workspace_id"`
	Payload     json.RawMessage `json:"payload"`
}

type slackMessage struct {
	Text string `json:"text"`
}

// Request is a fully prepared outbound delivery.
type Request struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

// BuildRequest renders the job for the trigger's destination and signs the
// exact body bytes with the trigger secret.
func BuildRequest(job *Job, trigger *models.OutgoingTrigger) (*Request, error) {
	payload := job.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	var (
		body []byte
		err  error
	)
	if trigger.DestinationType == models.DestinationSlack {
		body, err = json.Marshal(slackMessage{Text: slackText(job, payload)})
	} else {
		body, err = json.Marshal(Envelope{
			Event:       job.EventType,
			Timestamp:   job.OccurredAt.UTC(),
			WorkspaceID: job.WorkspaceID,
			Payload:     payload,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	return &Request{
		URL:  trigger.DestinationURL,
		Body: body,
		Headers: map[string]string{
			HeaderSecret:    trigger.Secret,
			HeaderSignature: billing.SignPayload(body, trigger.Secret),
			HeaderEventType: job.EventType,
			HeaderDispatch:  job.ID,
		},
	}, nil
}

func slackText(job *Job, payload json.RawMessage) string {
	return fmt.Sprintf("*%s* at %s\n```%s```", job.EventType, job.OccurredAt.UTC().Format(time.RFC3339), string(payload))
}
