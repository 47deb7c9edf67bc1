package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSweepRun = "funnel.sweep"

const TaskPlaceCall = "funnel.call.place"

type SweepRunPayload struct {
	RequestedBy string `json:"requestedBy"`
}

type PlaceCallPayload struct {
	LeadID string `json:"leadId"`
}

func NewSweepRunTask(payload SweepRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepRun, data), nil
}

func ParseSweepRunPayload(task *asynq.Task) (SweepRunPayload, error) {
	var payload SweepRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SweepRunPayload{}, err
	}
	return payload, nil
}

func NewPlaceCallTask(payload PlaceCallPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlaceCall, data), nil
}

func ParsePlaceCallPayload(task *asynq.Task) (PlaceCallPayload, error) {
	var payload PlaceCallPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PlaceCallPayload{}, err
	}
	return payload, nil
}
