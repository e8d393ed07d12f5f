package outbox

import "github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"

// Kafka topics fed by the outbox.
const (
	TopicAlertEvents = "campus_alert_events"
	TopicGoalEvents  = "campus_step_goal_events"
)

// Route describes where an outbox event type is delivered.
type Route struct {
	Topic         string
	SchemaSubject string
}

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Route
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeAlertCreated: {
		Route:  Route{Topic: TopicAlertEvents, SchemaSubject: TopicAlertEvents + "-value"},
		Schema: alertLifecycleSchema,
	},
	events.TypeAlertPublished: {
		Route:  Route{Topic: TopicAlertEvents, SchemaSubject: TopicAlertEvents + "-value"},
		Schema: alertLifecycleSchema,
	},
	events.TypeAlertDeleted: {
		Route:  Route{Topic: TopicAlertEvents, SchemaSubject: TopicAlertEvents + "-deleted-value"},
		Schema: alertDeletedSchema,
	},
	events.TypeGoalReached: {
		Route:  Route{Topic: TopicGoalEvents, SchemaSubject: TopicGoalEvents + "-value"},
		Schema: goalReachedSchema,
	},
}

// RouteFor returns the delivery route for an event type.
func RouteFor(eventType string) (Route, bool) {
	entry, ok := schemaCatalog[eventType]
	return entry.Route, ok
}

const alertLifecycleSchema = `{
  "type": "object",
  "title": "AlertLifecycle",
  "properties": {
    "id": {"type": "string"},
    "title": {"type": "string"},
    "message": {"type": "string"},
    "priority": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH"]},
    "createdById": {"type": "string"},
    "startTime": {"type": "string", "format": "date-time"},
    "endTime": {"type": "string", "format": "date-time"},
    "status": {"type": "string", "enum": ["DRAFT", "ACTIVE", "EXPIRED"]},
    "createdAt": {"type": "string", "format": "date-time"},
    "updatedAt": {"type": "string", "format": "date-time"},
    "recipientCount": {"type": "integer"},
    "occurredAt": {"type": "string", "format": "date-time"}
  },
  "required": ["id", "title", "message", "priority", "createdById", "startTime", "endTime", "status", "recipientCount", "occurredAt"],
  "additionalProperties": false
}`

const alertDeletedSchema = `{
  "type": "object",
  "title": "AlertDeleted",
  "properties": {
    "id": {"type": "string"},
    "deletedAt": {"type": "string", "format": "date-time"}
  },
  "required": ["id", "deletedAt"],
  "additionalProperties": false
}`

const goalReachedSchema = `{
  "type": "object",
  "title": "StepGoalReached",
  "properties": {
    "userId": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "totalSteps": {"type": "integer"},
    "goal": {"type": "integer"},
    "occurredAt": {"type": "string", "format": "date-time"}
  },
  "required": ["userId", "day", "totalSteps", "goal", "occurredAt"],
  "additionalProperties": false
}`
