package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Orurh/courier-dispatch/internal/notify"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	got  []published
	fail error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	f.got = append(f.got, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func sample() notify.Notification {
	return notify.Notification{
		ActorID:  1,
		TargetID: 42,
		Event:    notify.EventDeliveryRequest,
		Title:    "New delivery request",
		Message:  "order o-1",
		Metadata: map[string]any{"broadcast_id": 7},
	}
}

func TestRealtime_PublishesToUserChannel(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	rt := notify.NewRealtime(pub)

	require.NoError(t, rt.Notify(context.Background(), sample()))
	require.Len(t, pub.got, 1)
	require.Equal(t, "user:42", pub.got[0].channel)

	var decoded notify.Notification
	require.NoError(t, json.Unmarshal(pub.got[0].payload, &decoded))
	require.Equal(t, notify.EventDeliveryRequest, decoded.Event)
	require.Equal(t, int64(42), decoded.TargetID)
}

func TestRealtime_PublishError(t *testing.T) {
	t.Parallel()

	rt := notify.NewRealtime(&fakePublisher{fail: errors.New("redis down")})
	err := rt.Notify(context.Background(), sample())
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis down")
}

func TestNewRealtime_NilClient(t *testing.T) {
	t.Parallel()

	require.Nil(t, notify.NewRealtime(nil))
}

func TestPush_SendsKeyedMessage(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "notifications.push" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	p := notify.NewPushWithProducer(producer, "notifications.push")
	require.NoError(t, p.Notify(context.Background(), sample()))
	require.NoError(t, p.Close())
}

func TestPush_SendError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := notify.NewPushWithProducer(producer, "notifications.push")
	err := p.Notify(context.Background(), sample())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNewPush_SkipsWithoutConfig(t *testing.T) {
	t.Parallel()

	p, err := notify.NewPush(nil, "topic")
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = notify.NewPush([]string{"b:9092"}, "  ")
	require.NoError(t, err)
	require.Nil(t, p)
}

type memAudit struct {
	got []notify.Notification
	err error
}

func (m *memAudit) InsertNotification(_ context.Context, n notify.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, n)
	return nil
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	audit := &memAudit{}
	errA := errors.New("a failed")
	calls := 0

	f := notify.NewFanout(
		notify.NotifierFunc(func(context.Context, notify.Notification) error {
			calls++
			return errA
		}),
		nil,
		notify.NewAudit(audit),
	)

	err := f.Notify(context.Background(), sample())
	require.ErrorIs(t, err, errA)
	require.Equal(t, 1, calls)
	require.Len(t, audit.got, 1)
	require.False(t, audit.got[0].CreatedAt.IsZero())
}

func TestFanout_Empty(t *testing.T) {
	t.Parallel()

	require.NoError(t, notify.NewFanout().Notify(context.Background(), sample()))
	require.NoError(t, notify.Nop{}.Notify(context.Background(), sample()))
}

func TestAudit_WrapsStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("insert failed")
	err := notify.NewAudit(&memAudit{err: boom}).Notify(context.Background(), sample())
	require.ErrorIs(t, err, boom)
	require.Nil(t, notify.NewAudit(nil))
}
