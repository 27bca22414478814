package api

import (
	"slices"
	"strings"

	"redub/internal/pipeline"
	"redub/internal/queue"
	"redub/internal/workflow"
)

// FromTask converts a queue record to its API representation.
func FromTask(task *queue.Task) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:       task.ID,
		Kind:     string(task.Kind),
		Status:   string(task.Status),
		Progress: task.Progress,
		VideoID:  task.VideoID,
		Error:    task.Error,
	}
	if len(task.Payload) > 0 {
		dto.Payload = append([]byte(nil), task.Payload...)
	}
	if !task.CreatedAt.IsZero() {
		dto.CreatedAt = task.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !task.UpdatedAt.IsZero() {
		dto.UpdatedAt = task.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromTasks converts a slice of queue records.
func FromTasks(tasks []*queue.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromStatusSummary converts the scheduler snapshot. Health results are
// sorted by name so output is stable.
func FromStatusSummary(summary workflow.StatusSummary, health []pipeline.Health) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Busy:       summary.Busy,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	if summary.CurrentTask != nil {
		current := FromTask(summary.CurrentTask)
		status.CurrentTask = &current
	}
	if summary.LastTask != nil {
		last := FromTask(summary.LastTask)
		status.LastTask = &last
	}
	status.StageHealth = make([]StageHealth, 0, len(health))
	for _, h := range health {
		status.StageHealth = append(status.StageHealth, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(status.StageHealth, func(a, b StageHealth) int {
		return strings.Compare(a.Name, b.Name)
	})
	return status
}

// MergeQueueStats reports every status, including those with zero tasks.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}
