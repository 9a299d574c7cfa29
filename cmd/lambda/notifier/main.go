package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/btc-guess/internal/app"
	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/infrastructure/kinesis"
	"github.com/example/btc-guess/internal/logger"
	"github.com/example/btc-guess/internal/notification"
	"go.uber.org/zap"
)

var (
	notificationHandler *notification.Handler
	adapter             *kinesis.GuessStreamAdapter
	log                 *zap.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Lambda Notifier] failed to load config: %v\n", err)
		os.Exit(1)
	}
	log = logger.Must(cfg.AppEnv, cfg.LogLevel)

	st, _, err := app.OpenStore(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("[Lambda Notifier] failed to open store", zap.Error(err))
	}

	svc := app.NewServices(st, cfg.Tables, log)
	notificationHandler = notification.NewHandler(notification.NewLogSender(log), svc.Users, log)
	adapter = kinesis.NewGuessStreamAdapter(cfg.Tables.Guesses)

	log.Info("[Lambda Notifier] initialized", zap.String("guesses_table", cfg.Tables.Guesses))
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	log.Info("[Lambda Notifier] received records", zap.Int("count", len(kinesisEvent.Records)))

	var batchItemFailures []events.KinesisBatchItemFailure

	for _, record := range kinesisEvent.Records {
		resolved, err := adapter.ConvertFromKinesisRecord(record)
		if err != nil {
			log.Error("[Lambda Notifier] failed to convert record", zap.String("event_id", record.EventID), zap.Error(err))
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}

		// Not a resolution
		if resolved == nil {
			continue
		}

		if err := notificationHandler.HandleGuessResolved(ctx, *resolved); err != nil {
			log.Error("[Lambda Notifier] failed to notify", zap.String("guess_id", resolved.GuessID), zap.Error(err))
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}

	log.Info("[Lambda Notifier] batch processed",
		zap.Int("succeeded", len(kinesisEvent.Records)-len(batchItemFailures)),
		zap.Int("total", len(kinesisEvent.Records)),
	)

	return events.KinesisEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

func main() {
	lambda.Start(handler)
}
