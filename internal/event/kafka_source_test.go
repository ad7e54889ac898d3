package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kafkaMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:  "doc-changes",
		Offset: 42,
		Value:  []byte(value),
	}
}

// TestProcessMessageRetriesUntilSuccess 处理失败不放行消息，重试到成功为止
//
// 提交任何后续消息的offset都会把失败的消息一并确认掉，
// 所以失败时必须停在当前消息上，而不是跳过。
func TestProcessMessageRetriesUntilSuccess(t *testing.T) {
	prev := handlerRetryDelay
	handlerRetryDelay = time.Millisecond
	defer func() { handlerRetryDelay = prev }()

	calls := 0
	handler := func(ctx context.Context, evt ChangeEvent) error {
		calls++
		if calls < 3 {
			return errors.New("index unavailable")
		}
		return nil
	}

	msg := kafkaMessage(`{"type":"CREATED","document_id":"basel.txt","name":"basel.txt","payload":"aGVsbG8="}`)
	err := processMessage(context.Background(), handler, msg)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestProcessMessageBlocksUntilCancel 持续失败时占住分区直到会话结束
func TestProcessMessageBlocksUntilCancel(t *testing.T) {
	prev := handlerRetryDelay
	handlerRetryDelay = time.Millisecond
	defer func() { handlerRetryDelay = prev }()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(ctx context.Context, evt ChangeEvent) error {
		calls++
		if calls == 5 {
			cancel()
		}
		return errors.New("index unavailable")
	}

	msg := kafkaMessage(`{"type":"MODIFIED","document_id":"basel.txt","name":"basel.txt","payload":"aGVsbG8="}`)
	err := processMessage(ctx, handler, msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 5)
}

// TestProcessMessageSkipsMalformed 畸形消息放行，不能卡死分区
func TestProcessMessageSkipsMalformed(t *testing.T) {
	handler := func(ctx context.Context, evt ChangeEvent) error {
		t.Fatal("handler should not be called for malformed messages")
		return nil
	}

	err := processMessage(context.Background(), handler, kafkaMessage(`{{{`))
	assert.NoError(t, err)
}
