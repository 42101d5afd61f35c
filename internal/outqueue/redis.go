// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package outqueue

import (
	"context"
	"fmt"

	"streamagg/internal/record"

	redis "github.com/redis/go-redis/v9"
)

// RedisStreamWriter ships each OutboundMessage as an entry on a Redis
// Stream named "streamagg:<db>:<kind>", via XAdd. Opt-in: most deployments
// start with LoggingWriter and switch to this once a Redis endpoint is
// available (§6).
type RedisStreamWriter struct {
	client *redis.Client
}

// NewRedisStreamWriter dials addr lazily (go-redis connects on first use).
func NewRedisStreamWriter(addr string) *RedisStreamWriter {
	return &RedisStreamWriter{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (w *RedisStreamWriter) Send(ctx context.Context, msg OutboundMessage) error {
	stream := fmt.Sprintf("streamagg:%s:%s", msg.DB, msg.Kind)
	values := map[string]any{
		"module":          msg.Module,
		"stream_key":      msg.StreamKey,
		"sampling_reason": msg.SamplingReason,
	}
	if rec, ok := msg.Record.(*record.Record); ok {
		encoded, err := rec.Encode()
		if err != nil {
			return fmt.Errorf("outqueue: encode record for stream %s: %w", stream, err)
		}
		values["record"] = encoded
	}
	if err := w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("outqueue: XAdd to %s: %w", stream, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (w *RedisStreamWriter) Close() error {
	return w.client.Close()
}
