package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFollowUpSweep = "followup.sweep"

const TaskReminderDispatch = "followup.reminder.dispatch"

const TaskAnalyticsSnapshot = "followup.analytics.snapshot"

type FollowUpSweepPayload struct {
	CompanyID string `json:"companyId"`
}

type ReminderDispatchPayload struct {
	CompanyID  string `json:"companyId"`
	ReminderID string `json:"reminderId"`
}

type AnalyticsSnapshotPayload struct {
	Day string `json:"day"`
}

func NewFollowUpSweepTask(payload FollowUpSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpSweep, data), nil
}

func ParseFollowUpSweepPayload(task *asynq.Task) (FollowUpSweepPayload, error) {
	var payload FollowUpSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpSweepPayload{}, err
	}
	return payload, nil
}

func NewReminderDispatchTask(payload ReminderDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderDispatch, data), nil
}

func ParseReminderDispatchPayload(task *asynq.Task) (ReminderDispatchPayload, error) {
	var payload ReminderDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderDispatchPayload{}, err
	}
	return payload, nil
}

func NewAnalyticsSnapshotTask(payload AnalyticsSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsSnapshot, data), nil
}

func ParseAnalyticsSnapshotPayload(task *asynq.Task) (AnalyticsSnapshotPayload, error) {
	var payload AnalyticsSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AnalyticsSnapshotPayload{}, err
	}
	return payload, nil
}
