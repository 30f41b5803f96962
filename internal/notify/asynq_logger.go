package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// AsynqLogger routes asynq's internal logging through zerolog.
type AsynqLogger struct {
	Log zerolog.Logger
}

var _ asynq.Logger = AsynqLogger{}

func (l AsynqLogger) Debug(args ...interface{}) { l.Log.Debug().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Info(args ...interface{})  { l.Log.Info().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Warn(args ...interface{})  { l.Log.Warn().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Error(args ...interface{}) { l.Log.Error().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Fatal(args ...interface{}) { l.Log.Fatal().Msg(fmt.Sprint(args...)) }

// ErrorHandler logs tasks whose handler returned an error.
func ErrorHandler(log zerolog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		log.Error().Err(err).
			Str("task_type", task.Type()).
			Int("retry", retried).
			Int("max_retry", maxRetry).
			Msg("task failed")
	})
}
