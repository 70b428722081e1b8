// cmd/notification-worker/main.go
package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/Abbracx/loan-be/internal/pkg/bootstrap"
	"github.com/Abbracx/loan-be/internal/pkg/mq"
	"github.com/Abbracx/loan-be/internal/service/notification/application"
	"github.com/Abbracx/loan-be/internal/service/notification/infrastructure"
	"github.com/Abbracx/loan-be/internal/service/notification/interfaces"
)

const serviceName = "notification-worker"

type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// main 只暴露 /healthz 与 /metrics，业务全部在 Kafka 消费者里。
func main() {
	var (
		consumers []consumer
		writers   []*kafka.Writer
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8001,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			kc := cfg.Infra.Kafka
			brokers := cfg.KafkaBrokers()
			nc := cfg.Notification

			sender := infrastructure.NewSMTPSender(nc.SMTP.Host, nc.SMTP.Port, nc.SMTP.Username, nc.SMTP.Password)
			svc := application.NewNotificationService(sender, nc.FromEmail, nc.AdminEmails, otel.Tracer(serviceName))

			retryWriter := mq.NewKafkaWriter(brokers, kc.RetryTopic)
			dltWriter := mq.NewKafkaWriter(brokers, kc.DLTTopic)
			writers = append(writers, retryWriter, dltWriter)
			failures := mq.NewFailureHandler(retryWriter, dltWriter, nc.MaxAttempts)

			primary := interfaces.NewFlaggedLoanConsumer(
				mq.NewKafkaReader(brokers, kc.NotificationTopic, kc.ConsumerGroup), kc.NotificationTopic, svc, failures)
			retry := interfaces.NewFlaggedLoanConsumer(
				mq.NewKafkaReader(brokers, kc.RetryTopic, kc.ConsumerGroup+"-retry"), kc.RetryTopic, svc, failures)
			retry.SetDelay(nc.RetryDelay)
			dlt := interfaces.NewDltConsumer(
				mq.NewKafkaReader(brokers, kc.DLTTopic, kc.ConsumerGroup+"-dlt"), kc.DLTTopic)

			consumers = []consumer{primary, retry, dlt}
			for _, c := range consumers {
				if err := c.Start(context.Background()); err != nil {
					log.Fatal().Err(err).Msg("failed to start kafka consumer")
				}
			}
		},
		OnShutdown: func(ctx context.Context) {
			var g errgroup.Group
			for _, c := range consumers {
				c := c
				g.Go(func() error {
					c.Stop(ctx)
					return nil
				})
			}
			_ = g.Wait()

			for _, w := range writers {
				if err := w.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing kafka writer")
				}
			}
		},
	})
}
