package sessionguard_test

import (
	"context"
	"fmt"

	"github.com/carenest/sessionguard"
	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/store"
)

// ExampleNew builds a manager, signs a patient in and signs them out again.
func ExampleNew() {
	m, err := sessionguard.New().
		WithStore(store.NewMemory()).
		Build()
	if err != nil {
		panic(err)
	}
	defer m.Close()

	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		panic(err)
	}

	m.Subscribe(func(e events.Event) {
		fmt.Println("event:", e.Type)
	})

	info, err := m.CreateSession(ctx, sessionguard.IdentityClaims{
		UserID: "patient-42",
		Role:   sessionguard.RolePatient,
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(info.Role, m.HasPermission("appointments:book"))

	_ = m.TerminateSession(ctx, sessionguard.ReasonLogout)
	reason, _ := m.TerminationReason()
	fmt.Println(m.IsAuthenticated(), reason)

	// Output:
	// event: created
	// patient true
	// event: terminated
	// false logout
}
