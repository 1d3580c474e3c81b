package rabbit_test

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-booking-payments/internal/adapters/rabbit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupConn(t *testing.T) *amqp.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "5672/tcp", "amqp")
	if err != nil {
		t.Fatal(err)
	}
	conn, err := amqp.Dial("amqp://guest:guest@" + endpoint[len("amqp://"):] + "/")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishConsume(t *testing.T) {
	conn := setupConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	consumer, err := rabbit.NewConsumer(conn, "test.audit", "booking.*")
	if err != nil {
		t.Fatal(err)
	}
	defer consumer.Close()
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	pub, err := rabbit.NewPublisher(conn)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	for _, key := range []string{"booking.confirmed", "hold.expired"} {
		err := pub.Publish(ctx, key, amqp.Publishing{
			MessageId:   "msg-" + key,
			ContentType: "application/json",
			Body:        []byte(`{}`),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	select {
	case d := <-deliveries:
		if d.RoutingKey != "booking.confirmed" || d.MessageId != "msg-booking.confirmed" {
			t.Errorf("unexpected delivery %s %s", d.RoutingKey, d.MessageId)
		}
		if err := d.Ack(false); err != nil {
			t.Fatal(err)
		}
	case <-ctx.Done():
		t.Fatal("no delivery received")
	}

	select {
	case d := <-deliveries:
		t.Errorf("unbound routing key delivered: %s", d.RoutingKey)
	case <-time.After(500 * time.Millisecond):
	}
}
