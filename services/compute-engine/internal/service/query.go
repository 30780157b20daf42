package service

import (
	"context"
	"fmt"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// TaskView задача в ответах API. Ветка и pull request берутся из характеристик.
type TaskView struct {
	*domain.Task
	Branch      string   `json:"branch,omitempty"`
	BranchType  string   `json:"branchType,omitempty"`
	PullRequest string   `json:"pullRequest,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ComponentActivity очередь компонента и его последняя завершенная задача
type ComponentActivity struct {
	Queue   []*TaskView `json:"queue"`
	Current *TaskView   `json:"current,omitempty"`
}

// QueryService чтение очереди и истории задач
type QueryService struct {
	queue    repository.QueueRepository
	activity repository.ActivityRepository
	messages *MessageService
}

// NewQueryService создает QueryService
func NewQueryService(queue repository.QueueRepository, activity repository.ActivityRepository, messages *MessageService) *QueryService {
	return &QueryService{queue: queue, activity: activity, messages: messages}
}

// NewTaskView строит представление задачи
func NewTaskView(task *domain.Task) *TaskView {
	view := &TaskView{Task: task}
	view.Branch, _ = task.Characteristics.Get(domain.CharacteristicBranch)
	view.BranchType, _ = task.Characteristics.Get(domain.CharacteristicBranchType)
	view.PullRequest, _ = task.Characteristics.Get(domain.CharacteristicPullRequest)
	return view
}

// FindTask ищет задачу сначала в очереди, затем в истории.
// Задача всегда находится ровно в одной из двух областей.
func (s *QueryService) FindTask(ctx context.Context, taskUUID string) (*domain.Task, error) {
	task, err := s.queue.Get(ctx, taskUUID)
	if err == nil {
		return task, nil
	}
	if !errors.IsCode(err, errors.ErrNotFound) {
		return nil, wrapRepoErr(ctx, err, "failed to get task")
	}

	task, err = s.activity.GetActivity(ctx, taskUUID)
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound) {
			return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("No activity found for task '%s'", taskUUID)).WithContext(ctx)
		}
		return nil, wrapRepoErr(ctx, err, "failed to get task")
	}
	return task, nil
}

// GetTask возвращает задачу с числом предупреждений и, по запросу, их текстами
func (s *QueryService) GetTask(ctx context.Context, taskUUID string, withWarnings bool, userUUID string) (*TaskView, error) {
	task, err := s.FindTask(ctx, taskUUID)
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, []*domain.Task{task})
	if err != nil {
		return nil, err
	}
	view := views[0]

	if withWarnings {
		warnings, err := s.messages.ListWarnings(ctx, task, userUUID)
		if err != nil {
			return nil, err
		}
		view.Warnings = make([]string, 0, len(warnings))
		for _, w := range warnings {
			view.Warnings = append(view.Warnings, w.Text)
		}
	}
	return view, nil
}

// ListPending возвращает задачи компонента в очереди в порядке постановки
func (s *QueryService) ListPending(ctx context.Context, componentUUID string) ([]*TaskView, error) {
	tasks, err := s.queue.ListByComponent(ctx, componentUUID)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to list queue")
	}
	return s.views(ctx, tasks)
}

// Current возвращает очередь компонента и его последнюю завершенную задачу
func (s *QueryService) Current(ctx context.Context, componentUUID string) (*ComponentActivity, error) {
	queue, err := s.ListPending(ctx, componentUUID)
	if err != nil {
		return nil, err
	}

	result := &ComponentActivity{Queue: queue}
	last, err := s.activity.LastForComponent(ctx, componentUUID)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to get last activity")
	}
	if last != nil {
		views, err := s.views(ctx, []*domain.Task{last})
		if err != nil {
			return nil, err
		}
		result.Current = views[0]
	}
	return result, nil
}

// Activity возвращает историю задач по фильтру
func (s *QueryService) Activity(ctx context.Context, filter repository.ActivityFilter) ([]*TaskView, error) {
	tasks, err := s.activity.List(ctx, filter)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to list activity")
	}
	return s.views(ctx, tasks)
}

func (s *QueryService) views(ctx context.Context, tasks []*domain.Task) ([]*TaskView, error) {
	uuids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		uuids = append(uuids, t.UUID)
	}
	counts, err := s.messages.WarningCounts(ctx, uuids)
	if err != nil {
		return nil, err
	}

	views := make([]*TaskView, 0, len(tasks))
	for _, t := range tasks {
		t.WarningCount = counts[t.UUID]
		views = append(views, NewTaskView(t))
	}
	return views, nil
}
