package testhelpers

import (
	"context"
	"log"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type TestBroker struct {
	Container *rabbitmq.RabbitMQContainer
	Conn      *amqp.Connection
	URL       string
}

// NewTestBroker starts a RabbitMQ container and dials it
func NewTestBroker(t *testing.T) *TestBroker {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
		rabbitmq.WithAdminPassword("password"),
		testcontainers.WithLogger(tclog.TestLogger(t)),
	)
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %s", err)
	}

	url, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get amqp url: %s", err)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		t.Fatalf("failed to connect to rabbitmq: %s", err)
	}

	return &TestBroker{
		Container: container,
		Conn:      conn,
		URL:       url,
	}
}

func (tb *TestBroker) Close() {
	_ = tb.Conn.Close()
	if termErr := tb.Container.Terminate(context.Background()); termErr != nil {
		log.Printf("failed to terminate rabbitmq container: %v", termErr)
	}
}
