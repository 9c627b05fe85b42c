/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// NewDedupeNotifier suppresses identical lifecycle events observed within the
// dedupe window. Logs pass through untouched.
func NewDedupeNotifier(next Notifier) Notifier {
	return &dedupe{
		next:  next,
		cache: cache.New(120*time.Second, 10*time.Second),
	}
}

type dedupe struct {
	next  Notifier
	cache *cache.Cache
}

func (d *dedupe) NotifyEvent(ctx context.Context, event *v1.ExecutionEvent) {
	key := fmt.Sprintf("%s-%s-%s-%s-%s", event.ExecutionID, event.Type, event.Stage, event.Step, event.Message)
	if _, exists := d.cache.Get(key); exists {
		return
	}
	d.cache.SetDefault(key, nil)
	d.next.NotifyEvent(ctx, event)
}

func (d *dedupe) NotifyLog(ctx context.Context, log *v1.ExecutionLog) {
	d.next.NotifyLog(ctx, log)
}

// NewLoadSheddingNotifier rate limits log fan-out. Logs arrive in bursts far
// above what subscribers consume; lifecycle events always pass because they
// drive state observers.
func NewLoadSheddingNotifier(next Notifier, logsPerSecond rate.Limit, burst int) Notifier {
	return &loadshedding{
		next:      next,
		logBucket: rate.NewLimiter(logsPerSecond, burst),
	}
}

type loadshedding struct {
	next      Notifier
	logBucket *rate.Limiter
}

func (l *loadshedding) NotifyEvent(ctx context.Context, event *v1.ExecutionEvent) {
	l.next.NotifyEvent(ctx, event)
}

func (l *loadshedding) NotifyLog(ctx context.Context, log *v1.ExecutionLog) {
	if !l.logBucket.Allow() {
		return
	}
	l.next.NotifyLog(ctx, log)
}
