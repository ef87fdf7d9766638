package outbox

const workoutCreatedSchema = `{
  "type": "object",
  "title": "WorkoutCreated",
  "properties": {
    "workout_id": {"type": "string"},
    "name": {"type": "string"},
    "type": {"type": "string", "enum": ["cardio", "strength", "flexibility", "sports"]},
    "duration_minutes": {"type": "integer", "minimum": 1},
    "calories": {"type": "integer", "minimum": 1},
    "performed_at": {"type": "string", "format": "date-time"},
    "has_location": {"type": "boolean"},
    "has_image": {"type": "boolean"}
  },
  "required": ["workout_id", "name", "type", "duration_minutes", "calories", "performed_at"],
  "additionalProperties": false
}`

const workoutDeletedSchema = `{
  "type": "object",
  "title": "WorkoutDeleted",
  "properties": {
    "workout_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "occurred_at"],
  "additionalProperties": false
}`
