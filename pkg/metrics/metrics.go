package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 定时发布计数
	ScheduledPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_publish_count",
			Help: "Total number of content items published by the scheduler",
		},
		[]string{"kind"}, // kind: post, review
	)

	// 调度器跳过计数
	SchedulerSkipCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_skip_count",
			Help: "Total number of scheduler runs skipped at admission",
		},
		[]string{"reason"}, // reason: running, cooldown
	)

	// 调度器单次执行时长（秒）
	SchedulerPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_pass_duration_seconds",
			Help:    "Duration of a full scheduler pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// 通知创建计数
	NotificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_count",
			Help: "Total number of in-app notification create attempts",
		},
		[]string{"type", "outcome"}, // outcome: created, deduped
	)

	// 邮件发送计数
	EmailSendCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_send_count",
			Help: "Total number of email dispatch attempts",
		},
		[]string{"provider", "status"}, // status: sent, failed, skipped
	)

	// 广播收件人计数
	BroadcastRecipientCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_recipient_count",
			Help: "Total number of broadcast recipients by delivery outcome",
		},
		[]string{"action", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_query_count",
			Help: "Total number of database queries exceeding the slow threshold",
		},
	)

	// 搜索索引事件计数
	SearchIndexEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_index_event_count",
			Help: "Total number of search index events by processing outcome",
		},
		[]string{"outcome"}, // outcome: indexed, duplicate, failed, dropped
	)
)

// RecordSchedulerPass 记录一次完整调度执行的时长
func RecordSchedulerPass(duration time.Duration) {
	SchedulerPassDuration.Observe(duration.Seconds())
}

// IncrementScheduledPublish 增加定时发布计数
func IncrementScheduledPublish(kind string) {
	ScheduledPublishCount.WithLabelValues(kind).Inc()
}

// IncrementSchedulerSkip 增加调度器跳过计数
func IncrementSchedulerSkip(reason string) {
	SchedulerSkipCount.WithLabelValues(reason).Inc()
}

// IncrementNotification 增加通知计数
func IncrementNotification(notifType, outcome string) {
	NotificationCount.WithLabelValues(notifType, outcome).Inc()
}

// IncrementEmailSend 增加邮件发送计数
func IncrementEmailSend(provider, status string) {
	EmailSendCount.WithLabelValues(provider, status).Inc()
}

// IncrementBroadcastRecipient 增加广播收件人计数
func IncrementBroadcastRecipient(action, status string) {
	BroadcastRecipientCount.WithLabelValues(action, status).Inc()
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementSearchIndexEvent 增加搜索索引事件计数
func IncrementSearchIndexEvent(outcome string) {
	SearchIndexEventCount.WithLabelValues(outcome).Inc()
}
