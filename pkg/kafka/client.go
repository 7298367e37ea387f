// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"careerkit-go/internal/config"
	"careerkit-go/pkg/events"
	"careerkit-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单条消息处理失败后允许的最大重试次数，超过后提交 offset 放弃。
const maxAttempts = 3

// EventProcessor 处理一条已保存回答的变更事件。
// 将消费者与具体的索引实现解耦。
type EventProcessor interface {
	Process(ctx context.Context, event events.SavedResponseEvent) error
}

// Producer 把变更事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		// 异步写入：保存接口不等待 broker，失败在 Completion 中记录
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("Kafka 写入 %d 条事件失败: %v", len(messages), err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一条事件。以记录 ID 作为消息 key，保证同一记录的事件有序。
func (p *Producer) Publish(ctx context.Context, event events.SavedResponseEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ID, 10)),
		Value: value,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// fetchBackoff 是读取失败后重试前的等待时间，连续失败时翻倍直到 maxFetchBackoff。
const (
	fetchBackoff    = time.Second
	maxFetchBackoff = 30 * time.Second
)

// messageReader 是 consume 用到的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StartConsumer 启动一个 Kafka 消费者来处理变更事件，ctx 取消后返回。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor EventProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, fetchBackoff)
	log.Info("Kafka 消费者已停止")
}

// consume 循环读取并处理消息，直到 ctx 结束。读取失败不会退出，而是退避后重试。
func consume(ctx context.Context, r messageReader, processor EventProcessor, backoff time.Duration) {
	wait := backoff
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("从 Kafka 读取消息失败, %s 后重试: %v", wait, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if wait *= 2; wait > maxFetchBackoff {
				wait = maxFetchBackoff
			}
			continue
		}
		wait = backoff

		var event events.SavedResponseEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := processWithRetry(ctx, processor, event); err != nil {
			log.Errorf("事件多次处理失败(>=%d)，提交 offset 终止重试: type=%s id=%d error=%v", maxAttempts, event.Type, event.ID, err)
		}
		commit(ctx, r, m)
	}
}

// processWithRetry 最多处理 maxAttempts 次，返回最后一次的错误。
func processWithRetry(ctx context.Context, processor EventProcessor, event events.SavedResponseEvent) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = processor.Process(ctx, event); err == nil {
			return nil
		}
		log.Warnf("处理事件失败: type=%s id=%d attempt=%d error=%v", event.Type, event.ID, attempt, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func commit(ctx context.Context, r messageReader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
