package service

import (
	"context"
	"fmt"
	"strings"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/repo"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StatusResult is the outcome of UpdateTaskStatus. Dual confirmation
// distinguishes a recorded half-confirmation from completion.
type StatusResult string

const (
	ResultRejected   StatusResult = "rejected"
	ResultApplied    StatusResult = "applied"
	ConfirmPartial   StatusResult = "partially_confirmed"
	ConfirmCompleted StatusResult = "completed"

	ConfirmRejected = ResultRejected
)

func (r StatusResult) OK() bool { return r != ResultRejected }

type MyTasks struct {
	Published []domain.Task `json:"published"`
	Accepted  []domain.Task `json:"accepted"`
}

type TaskService interface {
	PublishTask(ctx context.Context, in domain.NewTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	// TakeTask assigns an open task to userID. Exactly one of several
	// concurrent takers wins; the others get false.
	TakeTask(ctx context.Context, taskID, userName, userID string) (bool, error)
	UpdateTaskStatus(ctx context.Context, taskID string, target domain.TaskStatus, actorID string) (StatusResult, error)
	ListMyTasks(ctx context.Context, userID string) (MyTasks, error)
	GetTaskUserStats(ctx context.Context, userID string) (domain.TaskUserStats, error)
}

type taskService struct {
	tasks   repo.TaskRepo
	effects *SideEffects
	limiter RateLimiter
	clock   clock.Clock
	policy  TaskPolicy
	log     logrus.FieldLogger

	inflight singleflight.Group
}

func NewTaskService(
	store repo.Store,
	effects *SideEffects,
	limiter RateLimiter,
	clk clock.Clock,
	policy TaskPolicy,
	log logrus.FieldLogger,
) TaskService {
	return &taskService{
		tasks:   store.Tasks,
		effects: effects,
		limiter: limiter,
		clock:   clk,
		policy:  policy,
		log:     log.WithField("component", "tasks"),
	}
}

func (s *taskService) PublishTask(ctx context.Context, in domain.NewTaskInput) (*domain.Task, error) {
	if in.PublisherID == "" {
		return nil, domain.ErrAuthRequired
	}
	if err := s.limiter.AssertRateLimit("task:publish:"+in.PublisherID, s.policy.PublishInterval); err != nil {
		return nil, err
	}
	task, err := domain.NewTask(in, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, domain.Unavailable(err)
	}

	s.log.WithFields(logrus.Fields{"task_id": task.ID, "publisher_id": task.PublisherID}).Info("task published")
	s.effects.AwardPoints(task.PublisherID, domain.BizPublishTask, task.ID)
	s.effects.Audit(domain.AuditTaskPublished, task.PublisherID, domain.AuditPayload{
		"taskId": task.ID,
		"type":   task.Type,
	})
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.load(ctx, taskID)
}

func (s *taskService) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.tasks.ListActive(ctx, maxListLimit)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return tasks, nil
}

func (s *taskService) TakeTask(ctx context.Context, taskID, userName, userID string) (bool, error) {
	if userID == "" {
		return false, domain.ErrAuthRequired
	}
	task, err := s.load(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.AssignedUserID == userID && task.Status == domain.TaskAssigned {
		return true, nil
	}
	taken, err, _ := s.inflight.Do("take:"+taskID+":"+userID, func() (any, error) {
		return s.take(ctx, task, userName, userID)
	})
	ok, _ := taken.(bool)
	return ok, err
}

func (s *taskService) take(ctx context.Context, task *domain.Task, userName, userID string) (bool, error) {
	taskID := task.ID
	if err := s.limiter.AssertRateLimit(fmt.Sprintf("task:take:%s:%s", userID, taskID), s.policy.StatusInterval); err != nil {
		if domain.CodeOf(err) == domain.CodeRateLimit {
			if latest, _ := s.tasks.FindById(ctx, taskID); latest != nil &&
				latest.Status == domain.TaskAssigned && latest.AssignedUserID == userID {
				return true, nil
			}
		}
		return false, err
	}
	if task.Status != domain.TaskOpen {
		return s.reject(task, domain.TaskAssigned, userID, reasonNotAllowed), nil
	}
	if task.PublisherID == userID {
		return s.reject(task, domain.TaskAssigned, userID, reasonPermission), nil
	}

	next := task.WithAssignee(userName, userID, s.clock.Now())
	swapped, err := s.tasks.CompareAndSwap(ctx, &next, domain.TaskOpen, task.UpdatedAt)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	if !swapped {
		latest, err := s.tasks.FindById(ctx, taskID)
		if err != nil {
			return false, domain.Unavailable(err)
		}
		if latest != nil && latest.Status == domain.TaskAssigned && latest.AssignedUserID == userID {
			return true, nil
		}
		return s.reject(task, domain.TaskAssigned, userID, reasonConflict), nil
	}

	s.log.WithFields(logrus.Fields{"task_id": taskID, "assignee_id": userID}).Info("task taken")
	s.effects.Audit(domain.AuditTaskTaken, userID, domain.AuditPayload{
		"taskId":      taskID,
		"publisherId": task.PublisherID,
	})
	return true, nil
}

func (s *taskService) UpdateTaskStatus(ctx context.Context, taskID string, target domain.TaskStatus, actorID string) (StatusResult, error) {
	if actorID == "" {
		return ResultRejected, domain.ErrAuthRequired
	}
	if target != domain.TaskConfirmComplete && (!target.Valid() || target == domain.TaskOpen || target == domain.TaskAssigned) {
		return ResultRejected, domain.InvalidParam(fmt.Sprintf("unsupported target status %q", target))
	}

	task, err := s.load(ctx, taskID)
	if err != nil {
		return ResultRejected, err
	}
	if target == domain.TaskConfirmComplete {
		if res, done := confirmationState(task, actorID); done {
			return res, nil
		}
	} else if task.Status == target {
		if domain.CanOperateTask(task, actorID, target) {
			return ResultApplied, nil
		}
		return s.rejectResult(task, target, actorID, reasonPermission), nil
	}
	key := fmt.Sprintf("status:%s:%s:%s", taskID, actorID, target)
	res, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.applyStatus(ctx, task, target, actorID)
	})
	result, ok := res.(StatusResult)
	if !ok {
		result = ResultRejected
	}
	return result, err
}

func (s *taskService) applyStatus(ctx context.Context, task *domain.Task, target domain.TaskStatus, actorID string) (StatusResult, error) {
	taskID := task.ID
	if err := s.assertStatusLimits(actorID, taskID, target); err != nil {
		if domain.CodeOf(err) == domain.CodeRateLimit {
			if res, done := s.settled(ctx, taskID, target, actorID); done {
				return res, nil
			}
		}
		return ResultRejected, err
	}

	if target == domain.TaskConfirmComplete {
		return s.confirm(ctx, task, actorID, true)
	}

	if !domain.CanTransitionTask(task.Status, target) {
		return s.rejectResult(task, target, actorID, reasonNotAllowed), nil
	}
	if !domain.CanOperateTask(task, actorID, target) {
		return s.rejectResult(task, target, actorID, reasonPermission), nil
	}

	next := task.WithTransition(target, s.clock.Now())
	swapped, err := s.tasks.CompareAndSwap(ctx, &next, task.Status, task.UpdatedAt)
	if err != nil {
		return ResultRejected, domain.Unavailable(err)
	}
	if !swapped {
		latest, err := s.tasks.FindById(ctx, taskID)
		if err != nil {
			return ResultRejected, domain.Unavailable(err)
		}
		if latest != nil && latest.Status == target {
			return ResultApplied, nil
		}
		return s.rejectResult(task, target, actorID, reasonConflict), nil
	}

	s.changed(task, &next, actorID)
	return ResultApplied, nil
}

// confirm records actorID's half of the dual confirmation. The write that
// sets the second confirmation also completes the task.
func (s *taskService) confirm(ctx context.Context, task *domain.Task, actorID string, retry bool) (StatusResult, error) {
	if res, done := confirmationState(task, actorID); done {
		return res, nil
	}
	if !domain.CanTransitionTask(task.Status, domain.TaskConfirmComplete) {
		return s.rejectResult(task, domain.TaskConfirmComplete, actorID, reasonNotAllowed), nil
	}
	if !domain.CanOperateTask(task, actorID, domain.TaskConfirmComplete) {
		return s.rejectResult(task, domain.TaskConfirmComplete, actorID, reasonPermission), nil
	}
	next := task.WithConfirmation(actorID, s.clock.Now())
	swapped, err := s.tasks.CompareAndSwap(ctx, &next, task.Status, task.UpdatedAt)
	if err != nil {
		return ResultRejected, domain.Unavailable(err)
	}
	if !swapped {
		latest, err := s.tasks.FindById(ctx, task.ID)
		if err != nil {
			return ResultRejected, domain.Unavailable(err)
		}
		if latest == nil {
			return ResultRejected, domain.ErrTaskNotFound
		}
		if res, done := confirmationState(latest, actorID); done {
			return res, nil
		}
		if retry {
			// the other party confirmed in between; confirm against the fresh copy
			return s.confirm(ctx, latest, actorID, false)
		}
		return s.rejectResult(task, domain.TaskConfirmComplete, actorID, reasonConflict), nil
	}

	completed := next.Status == domain.TaskCompleted
	s.log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"actor_id":  actorID,
		"completed": completed,
	}).Info("task confirmation recorded")
	s.effects.Audit(domain.AuditTaskDualConfirm, actorID, domain.AuditPayload{
		"taskId":    task.ID,
		"completed": completed,
	})
	if !completed {
		return ConfirmPartial, nil
	}
	s.changed(task, &next, actorID)
	return ConfirmCompleted, nil
}

// settled re-reads a task after a throttled call and reports the result
// an earlier call of the same actor already produced.
func (s *taskService) settled(ctx context.Context, taskID string, target domain.TaskStatus, actorID string) (StatusResult, bool) {
	latest, err := s.tasks.FindById(ctx, taskID)
	if err != nil || latest == nil {
		return "", false
	}
	if target == domain.TaskConfirmComplete {
		return confirmationState(latest, actorID)
	}
	if latest.Status == target && domain.CanOperateTask(latest, actorID, target) {
		return ResultApplied, true
	}
	return "", false
}

// confirmationState reports results that need no write: the task is
// already completed, or actorID's confirmation is already recorded.
func confirmationState(task *domain.Task, actorID string) (StatusResult, bool) {
	switch {
	case task.Status == domain.TaskCompleted && task.IsParty(actorID):
		return ConfirmCompleted, true
	case task.Status == domain.TaskAssigned && task.HasConfirmed(actorID):
		return ConfirmPartial, true
	}
	return "", false
}

func (s *taskService) changed(prev, next *domain.Task, actorID string) {
	s.log.WithFields(logrus.Fields{
		"task_id":  next.ID,
		"from":     prev.Status,
		"to":       next.Status,
		"actor_id": actorID,
	}).Info("task status changed")
	if next.Status == domain.TaskCompleted {
		s.effects.AwardPoints(actorID, domain.BizCompleteTask, next.ID)
		s.effects.TaskCompleted(next.ID, actorID)
	}
	s.effects.Audit(domain.AuditTaskStatusChanged, actorID, domain.AuditPayload{
		"taskId": next.ID,
		"from":   string(prev.Status),
		"to":     string(next.Status),
	})
}

func (s *taskService) assertStatusLimits(actorID, taskID string, target domain.TaskStatus) error {
	if err := s.limiter.AssertRateLimit(fmt.Sprintf("task:status:%s:%s:%s", actorID, taskID, target), s.policy.StatusInterval); err != nil {
		return err
	}
	return s.limiter.AssertBurstLimit(fmt.Sprintf("task:status:burst:%s:%s", actorID, taskID), s.policy.StatusBurstWindow, s.policy.StatusBurstMax)
}

func (s *taskService) ListMyTasks(ctx context.Context, userID string) (MyTasks, error) {
	published, accepted, err := s.userTasks(ctx, userID, maxListLimit)
	if err != nil {
		return MyTasks{}, err
	}
	return MyTasks{Published: published, Accepted: accepted}, nil
}

func (s *taskService) GetTaskUserStats(ctx context.Context, userID string) (domain.TaskUserStats, error) {
	published, accepted, err := s.userTasks(ctx, userID, taskStatsScan)
	if err != nil {
		return domain.TaskUserStats{}, err
	}
	return domain.BuildTaskUserStats(published, accepted), nil
}

func (s *taskService) userTasks(ctx context.Context, userID string, limit int) (published, accepted []domain.Task, err error) {
	if userID == "" {
		return nil, nil, domain.ErrAuthRequired
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		published, err = s.tasks.ListByPublisher(gctx, userID, limit)
		return err
	})
	g.Go(func() error {
		var err error
		accepted, err = s.tasks.ListByAssignee(gctx, userID, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, domain.Unavailable(err)
	}
	return published, accepted, nil
}

func (s *taskService) reject(task *domain.Task, target domain.TaskStatus, actorID, reason string) bool {
	s.log.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"status":   task.Status,
		"target":   target,
		"actor_id": actorID,
		"reason":   reason,
	}).Info("task transition rejected")
	s.effects.Audit(domain.AuditTaskStatusRejected, actorID, domain.AuditPayload{
		"taskId": task.ID,
		"status": string(task.Status),
		"target": string(target),
		"reason": reason,
	})
	return false
}

func (s *taskService) rejectResult(task *domain.Task, target domain.TaskStatus, actorID, reason string) StatusResult {
	s.reject(task, target, actorID, reason)
	return ResultRejected
}

func (s *taskService) load(ctx context.Context, taskID string) (*domain.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, domain.InvalidParam("taskId is required")
	}
	task, err := s.tasks.FindById(ctx, taskID)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}
