package state_test

import (
	"context"
	"fmt"
	"log"

	"github.com/policywarden/warden/pkg/state"
)

// ExampleNew demonstrates opening a migrated store.
func ExampleNew() {
	ctx := context.Background()

	store, err := state.New(ctx, ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_AcquireLock demonstrates fail-fast lock contention.
func ExampleSQLiteStore_AcquireLock() {
	ctx := context.Background()
	store, _ := state.NewMemory(ctx)
	defer store.Close()

	scope := "/subscriptions/s-dev"

	lock, err := store.AcquireLock(ctx, scope, "ci-runner-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Locked by: %s\n", lock.Holder)

	// A second caller fails fast instead of queueing.
	if _, err := store.AcquireLock(ctx, scope, "ci-runner-2"); err != nil {
		fmt.Println("Second caller: lock held")
	}

	_ = store.ReleaseLock(ctx, lock.ID)
	// Output:
	// Locked by: ci-runner-1
	// Second caller: lock held
}

// ExampleSQLiteStore_WriteSnapshot demonstrates serial-checked writes.
func ExampleSQLiteStore_WriteSnapshot() {
	ctx := context.Background()
	store, _ := state.NewMemory(ctx)
	defer store.Close()

	snap, _ := store.ReadSnapshot(ctx, "/subscriptions/s-dev")
	fmt.Printf("Serial before: %d\n", snap.Serial)

	if err := store.WriteSnapshot(ctx, snap, snap.Serial); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Serial after: %d\n", snap.Serial)
	// Output:
	// Serial before: 0
	// Serial after: 1
}
