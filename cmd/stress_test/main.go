package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/shop-stock/internal/adapter/auth"
	"github.com/rl1809/shop-stock/internal/adapter/storage"
	"github.com/rl1809/shop-stock/internal/config"
	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/core/service"
	"github.com/rl1809/shop-stock/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// quietPresenter counts notifications instead of showing them.
type quietPresenter struct {
	errors atomic.Int32
}

func (p *quietPresenter) Render(domain.View) {}

func (p *quietPresenter) Notify(n port.Notification) {
	if n.Severity == port.SeverityError {
		p.errors.Add(1)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	for _, mode := range []service.AdjustMode{service.AdjustAtomic, service.AdjustLastWrite} {
		if err := run(cfg, mode); err != nil {
			log.Fatalf("%s: %v", mode, err)
		}
	}
}

// run fires totalRequests concurrent +1 adjustments, each based on the
// quantity the client last saw, and checks that none was lost.
func run(cfg config.Config, mode service.AdjustMode) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collection, closeStorage, err := storage.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	session := service.NewSession(fmt.Sprintf("stress-%d", time.Now().UnixNano()), collection, auth.NewTokenAuthenticator(""))
	if _, err := session.Authenticate(ctx, ""); err != nil {
		return err
	}

	presenter := &quietPresenter{}
	engine := service.NewSyncEngine(session, presenter, cfg.ReorderPoint)
	mutations := service.NewMutationService(session, presenter, service.WithAdjustMode(mode))
	go engine.Run(ctx)

	res, err := mutations.Upsert(ctx, service.UpsertInput{
		Name:     "stress-item",
		Quantity: fmt.Sprint(initialStock),
		Price:    "1.00",
	})
	if err != nil {
		return err
	}
	if err := waitFor(engine, res.ID, initialStock); err != nil {
		return err
	}

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			seen, _ := engine.View().Find(res.ID)
			if err := mutations.AdjustQuantity(ctx, res.ID, 1, seen.Item.Quantity); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	expected := initialStock + int(successCount.Load())
	final := finalQuantity(engine, res.ID, expected)

	fmt.Printf("========== STRESS TEST RESULTS (%s, %s) ==========\n", mode, cfg.Backend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Error Notices:    %d\n", presenter.errors.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Stock:      %d\n", final)

	if final == expected {
		fmt.Println("PASS: no adjustment was lost")
	} else {
		fmt.Printf("LOST UPDATES: %d of %d adjustments overwritten\n", expected-final, successCount.Load())
	}
	fmt.Println("==================================================")
	return nil
}

func waitFor(engine *service.SyncEngine, id string, quantity int) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if iv, ok := engine.View().Find(id); ok && iv.Item.Quantity == quantity {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("item %s did not reach quantity %d", id, quantity)
}

// finalQuantity waits for the view to settle on expected and otherwise
// returns whatever it shows after the deadline.
func finalQuantity(engine *service.SyncEngine, id string, expected int) int {
	if waitFor(engine, id, expected) == nil {
		return expected
	}
	iv, _ := engine.View().Find(id)
	return iv.Item.Quantity
}
