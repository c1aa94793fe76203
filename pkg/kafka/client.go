// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"canon-rag-go/internal/config"
	"canon-rag-go/pkg/log"
	"canon-rag-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor 是能够处理入库任务的服务，消费者只依赖这个接口。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIngestionTask) error
}

// Producer 把入库任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishIngestionTask 发送一个入库任务，以文档 ID 作为消息 key。
func (p *Producer) PublishIngestionTask(ctx context.Context, task tasks.DocumentIngestionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.DocumentID)),
		Value: taskBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AttemptsKey 是任务失败计数在 Redis 中的 key。
func AttemptsKey(documentID uint) string {
	return fmt.Sprintf("kafka:attempts:doc:%d", documentID)
}

// Decision 描述一条消息处理后的去向。
type Decision int

const (
	// DecisionCommit 提交 offset。
	DecisionCommit Decision = iota
	// DecisionRedeliver 不提交；只在 ctx 取消时出现，消费者退出后由 Kafka 重新投递。
	DecisionRedeliver
)

// RetryPolicy 控制一条消息在消费者内部的重试。
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

func policyFromConfig(cfg config.KafkaConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	}
}

// retryable 由处理方的错误声明是否值得重试，未声明的错误视为可重试。
type retryable interface {
	Retryable() bool
}

func isTerminal(err error) bool {
	var r retryable
	return errors.As(err, &r) && !r.Retryable()
}

// HandleMessage 解析并处理一条消息，在原地重试可重试的失败，直到成功、
// 遇到不可重试的错误或用完 MaxAttempts，然后提交 offset。
// 失败次数同时记在 Redis 中，消费者重启后重新投递的消息沿用已有次数。
func HandleMessage(ctx context.Context, value []byte, processor TaskProcessor, rdb *redis.Client, policy RetryPolicy) Decision {
	var task tasks.DocumentIngestionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return DecisionCommit
	}
	policy = policy.normalized()
	key := AttemptsKey(task.DocumentID)

	attempts := previousAttempts(ctx, rdb, key)
	backoff := policy.Backoff
	for {
		if attempts >= policy.MaxAttempts {
			log.Errorf("入库任务已失败 %d 次，提交 offset 放弃: DocumentID=%d", attempts, task.DocumentID)
			clearAttempts(ctx, rdb, key)
			return DecisionCommit
		}

		log.Infof("开始处理入库任务: DocumentID=%d, FileName=%s, 第 %d 次", task.DocumentID, task.FileName, attempts+1)
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: DocumentID=%d", task.DocumentID)
			clearAttempts(ctx, rdb, key)
			return DecisionCommit
		}
		if ctx.Err() != nil {
			log.Warnf("消费者停止, 入库任务未完成: DocumentID=%d", task.DocumentID)
			return DecisionRedeliver
		}
		if isTerminal(err) {
			log.Errorf("入库任务失败且不可重试，提交 offset: DocumentID=%d, Error: %v", task.DocumentID, err)
			clearAttempts(ctx, rdb, key)
			return DecisionCommit
		}

		attempts = recordAttempt(ctx, rdb, key, attempts)
		log.Errorf("处理入库任务失败: DocumentID=%d, 已失败 %d/%d 次, Error: %v", task.DocumentID, attempts, policy.MaxAttempts, err)
		if attempts >= policy.MaxAttempts {
			continue
		}
		select {
		case <-ctx.Done():
			return DecisionRedeliver
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func previousAttempts(ctx context.Context, rdb *redis.Client, key string) int {
	if rdb == nil {
		return 0
	}
	n, err := rdb.Get(ctx, key).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("读取重试次数失败 %s: %v", key, err)
		}
		return 0
	}
	return n
}

// recordAttempt 返回新的失败次数；Redis 不可用时只在内存中计数。
func recordAttempt(ctx context.Context, rdb *redis.Client, key string, current int) int {
	if rdb == nil {
		return current + 1
	}
	n, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("记录重试次数失败 %s: %v", key, err)
		return current + 1
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return int(n)
}

func clearAttempts(ctx context.Context, rdb *redis.Client, key string) {
	if rdb != nil {
		_ = rdb.Del(ctx, key).Err()
	}
}

// StartConsumer 启动消费者，按顺序处理消息，阻塞直到 ctx 取消或读取失败。
// 一条消息处理完（成功、放弃或不可重试）才提交 offset 并读取下一条。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	policy := policyFromConfig(cfg)
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if HandleMessage(ctx, m.Value, processor, rdb, policy) == DecisionRedeliver {
			log.Info("Kafka 消费者已停止")
			return nil
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
