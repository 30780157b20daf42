package service

import (
	"context"
	"fmt"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/pkg/validation"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// ReportSubmission отчет анализа, присланный сканером
type ReportSubmission struct {
	ProjectKey      string
	ProjectName     string
	Characteristics map[string]string
	Payload         []byte
	SubmitterUUID   string
}

// SubmittedReport идентификаторы поставленной задачи и проекта
type SubmittedReport struct {
	TaskUUID    string `json:"taskId"`
	ProjectUUID string `json:"projectId"`
}

// ReportSubmitter ставит задачи REPORT, создавая проект при первом анализе
type ReportSubmitter struct {
	projects    repository.ProjectRepository
	submissions *SubmissionService
	validator   *validation.Validator
	logger      logger.Logger
}

// NewReportSubmitter создает ReportSubmitter
func NewReportSubmitter(projects repository.ProjectRepository, submissions *SubmissionService, log logger.Logger) *ReportSubmitter {
	return &ReportSubmitter{
		projects:    projects,
		submissions: submissions,
		validator:   validation.NewValidator(),
		logger:      log,
	}
}

// Submit сохраняет отчет и ставит задачу его обработки.
// Неизвестные характеристики отбрасываются без ошибки.
func (r *ReportSubmitter) Submit(ctx context.Context, report ReportSubmission) (*SubmittedReport, error) {
	if err := r.validator.ValidateComponentKey(report.ProjectKey); err != nil {
		return nil, err
	}
	name := report.ProjectName
	if name == "" {
		name = report.ProjectKey
	}
	if err := r.validator.ValidateStringLength(name, "projectName", 1, 500); err != nil {
		return nil, err
	}

	project, err := r.projects.GetOrCreate(ctx, report.ProjectKey, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to resolve project").
			WithDetails(fmt.Sprintf("project_key: %s", report.ProjectKey)).
			WithContext(ctx)
	}

	submission := domain.NewTaskSubmission(domain.TaskTypeReport, domain.NewComponent(project.UUID, ""), report.SubmitterUUID)
	submission.Characteristics = domain.NewCharacteristics(report.Characteristics)
	submission.Input = report.Payload

	task, err := r.submissions.Submit(ctx, submission)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Analysis report submitted",
		logger.String("task_uuid", task.UUID),
		logger.String("project_key", project.Key),
		logger.Strings("characteristics", task.Characteristics.Keys()),
		logger.CtxField(ctx),
	)
	return &SubmittedReport{TaskUUID: task.UUID, ProjectUUID: project.UUID}, nil
}
