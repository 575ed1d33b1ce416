package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"campus-market/internal/config"
	"campus-market/internal/domain"
	"campus-market/internal/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "race concurrent buyers and helpers against an in-memory engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "contenders", Value: 20, Usage: "concurrent callers per race"},
		},
		Action: simulate,
	}
}

func simulate(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Store = config.StoreMemory
	// keep the race report readable unless debugging
	if log.GetLevel() == logrus.InfoLevel {
		log.SetLevel(logrus.WarnLevel)
	}

	ctx := c.Context
	eng, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.close()

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		eng.dispatcher.Run(runCtx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	n := c.Int("contenders")
	fmt.Printf("--- STARTING SIMULATION (%d CONTENDERS) ---\n", n)

	orderID, err := raceOrders(ctx, eng.orders, n)
	if err != nil {
		return err
	}
	if err := raceConfirm(ctx, eng.orders, orderID); err != nil {
		return err
	}
	taskID, err := raceTake(ctx, eng.tasks, n)
	if err != nil {
		return err
	}
	if err := raceDualConfirm(ctx, eng.tasks, taskID); err != nil {
		return err
	}

	eng.dispatcher.Flush()
	for _, user := range []string{"seller", "helper"} {
		rec, err := eng.trust.Get(ctx, user)
		if err != nil {
			return err
		}
		summary, err := eng.points.Balance(ctx, user)
		if err != nil {
			return err
		}
		fmt.Printf("    -> %s: trust %d (%s), points %d\n", user, rec.Score, domain.LevelFor(rec.Score), summary.Total)
	}
	return nil
}

// raceOrders has n buyers order the same product at once. Exactly one wins.
func raceOrders(ctx context.Context, orders service.OrderService, n int) (string, error) {
	productID := uuid.NewString()
	var (
		won    atomic.Value
		denied atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		g.Go(func() error {
			order, err := orders.CreateOrder(gctx, domain.NewOrderInput{
				ProductID: productID,
				BuyerID:   buyer,
				BuyerName: buyer,
				Seller: domain.SellerContext{
					SellerID:     "seller",
					ProductTitle: "desk lamp",
					ProductPrice: decimal.RequireFromString("18.00"),
				},
			})
			switch {
			case err == nil:
				won.Store(order.ID)
			case domain.CodeOf(err) == domain.CodeInvalidState:
				denied.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	id, _ := won.Load().(string)
	fmt.Printf("[orders] product %s: 1 order created, %d rejected as already taken\n", productID, denied.Load())
	if id == "" {
		return "", errors.New("no order won the race")
	}
	return id, nil
}

// raceConfirm drives the order to completion, firing each step twice.
func raceConfirm(ctx context.Context, orders service.OrderService, orderID string) error {
	order, err := orders.GetOrder(ctx, orderID, "seller")
	if err != nil {
		return err
	}
	steps := []struct {
		actor  string
		target domain.OrderStatus
	}{
		{order.BuyerID, domain.OrderMeetConfirmed},
		{order.SellerID, domain.OrderPaidConfirmed},
		{order.BuyerID, domain.OrderReceivedConfirmed},
		{order.SellerID, domain.OrderCompleted},
	}
	for _, step := range steps {
		var ok atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 2; i++ {
			g.Go(func() error {
				moved, err := orders.Transition(gctx, orderID, step.target, step.actor, service.TransitionExtra{})
				if err != nil && domain.CodeOf(err) != domain.CodeRateLimit {
					return err
				}
				if moved {
					ok.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		fmt.Printf("[orders] %-18s by %-9s -> %d/2 calls reported success\n", step.target, step.actor, ok.Load())
	}
	return nil
}

// raceTake has n helpers grab one task. Exactly one is assigned.
func raceTake(ctx context.Context, tasks service.TaskService, n int) (string, error) {
	task, err := tasks.PublishTask(ctx, domain.NewTaskInput{
		Title:       "pick up parcel",
		Type:        domain.TaskTypeExpress,
		Reward:      decimal.NewFromInt(4),
		PublisherID: "publisher",
		Publisher:   "publisher",
	})
	if err != nil {
		return "", err
	}

	var taken atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		helper := fmt.Sprintf("helper-%d", i)
		if i == 0 {
			helper = "helper"
		}
		g.Go(func() error {
			ok, err := tasks.TakeTask(gctx, task.ID, helper, helper)
			if err != nil {
				return err
			}
			if ok {
				taken.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	latest, err := tasks.GetTask(ctx, task.ID)
	if err != nil {
		return "", err
	}
	fmt.Printf("[tasks] task %s: %d take succeeded, assigned to %s\n", task.ID, taken.Load(), latest.AssignedUserID)
	return task.ID, nil
}

// raceDualConfirm has both parties confirm at the same moment.
func raceDualConfirm(ctx context.Context, tasks service.TaskService, taskID string) error {
	task, err := tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	results := make([]service.StatusResult, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i, actor := range []string{task.PublisherID, task.AssignedUserID} {
		g.Go(func() error {
			res, err := tasks.UpdateTaskStatus(gctx, taskID, domain.TaskConfirmComplete, actor)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	latest, err := tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Printf("[tasks] dual confirm results %v, final status %s\n", results, latest.Status)
	return nil
}
