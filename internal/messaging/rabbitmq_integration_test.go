//go:build integration

package messaging_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRabbitMQ starts a RabbitMQ container and returns its connection URL.
func setupRabbitMQ(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start RabbitMQ container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestRabbitMQConnection(t *testing.T) {
	url := setupRabbitMQ(t)

	t.Run("successful_connection", func(t *testing.T) {
		rmq, err := messaging.NewRabbitMQ(url)
		require.NoError(t, err)
		defer rmq.Close()

		assert.False(t, rmq.IsClosed())
		assert.NoError(t, rmq.Ping(context.Background()))
	})

	t.Run("invalid_url_fails", func(t *testing.T) {
		_, err := messaging.NewRabbitMQ("amqp://invalid:9999/")
		assert.Error(t, err)
	})

	t.Run("closed_connection", func(t *testing.T) {
		rmq, err := messaging.NewRabbitMQ(url)
		require.NoError(t, err)
		require.NoError(t, rmq.Close())

		assert.True(t, rmq.IsClosed())
		assert.Error(t, rmq.Ping(context.Background()))
	})
}

func TestRelayAcrossInstances(t *testing.T) {
	url := setupRabbitMQ(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := func(origin string) *events.Bus {
		rmq, err := messaging.NewRabbitMQ(url)
		require.NoError(t, err)
		t.Cleanup(func() { rmq.Close() })

		bus := events.NewBus(origin)
		require.NoError(t, messaging.NewRelay(rmq, bus).Start(ctx))
		return bus
	}

	busA := start("node-a")
	busB := start("node-b")

	onA := make(chan events.Event, 4)
	onB := make(chan events.Event, 4)
	busA.Subscribe(events.SessionCleared, func(_ context.Context, e events.Event) { onA <- e })
	busB.Subscribe(events.SessionCleared, func(_ context.Context, e events.Event) { onB <- e })

	busA.Publish(ctx, events.Event{Kind: events.SessionCleared, Session: "abc"})

	select {
	case e := <-onB:
		assert.Equal(t, "abc", e.Session)
		assert.Equal(t, "node-a", e.Origin)
	case <-time.After(10 * time.Second):
		t.Fatal("event did not reach the second instance")
	}

	// node-a saw its own publish once, locally; the fanout echo is dropped
	require.Len(t, onA, 1)
	<-onA
	select {
	case e := <-onA:
		t.Fatalf("echo delivered on origin instance: %+v", e)
	case <-time.After(500 * time.Millisecond):
	}
}
