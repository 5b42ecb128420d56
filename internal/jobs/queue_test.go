package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

func mustJob(t *testing.T, user string, reason TriggerReason) Job {
	t.Helper()
	j, err := NewJob(user, testDay, reason)
	require.NoError(t, err)
	return j
}

func TestNewJob_Validates(t *testing.T) {
	_, err := NewJob("", testDay, ReasonTaskComplete)
	assert.Error(t, err)

	_, err = NewJob("u1", time.Time{}, ReasonTaskComplete)
	assert.Error(t, err)

	_, err = NewJob("u1", testDay, "cosmic_ray")
	assert.Error(t, err)

	j, err := NewJob("u1", testDay.Add(15*time.Hour), ReasonAdminCalibrate)
	require.NoError(t, err)
	assert.Equal(t, testDay, j.Date, "date truncated to the civil day")
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, "u1/2024-01-03", j.Key())
}

func TestMemoryQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4, 3)
	defer q.Close()

	a := mustJob(t, "a", ReasonTaskComplete)
	b := mustJob(t, "b", ReasonReflectionDone)
	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))
	assert.Equal(t, 2, q.Len())

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, d.Job().ID)
	require.NoError(t, d.Ack(ctx))

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, d.Job().ID)
}

func TestMemoryQueue_NackRedeliversThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4, 2)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, mustJob(t, "u1", ReasonTaskComplete)))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Nack(ctx, errors.New("db down")))
	assert.Equal(t, 1, q.Len())

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Job().Attempts)
	require.NoError(t, d.Nack(ctx, errors.New("db still down")))

	assert.Equal(t, 0, q.Len())
	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "db still down", dead[0].Cause)
	assert.Equal(t, 2, dead[0].Job.Attempts)
}

func TestMemoryQueue_DequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)

	err = q.Enqueue(context.Background(), mustJob(t, "u1", ReasonTaskComplete))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestRedisQueue_Integration(t *testing.T) {
	url := os.Getenv("REVUP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("REVUP_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	key := "revup:test:" + time.Now().Format("150405.000000000")
	q := NewRedisQueue(client, key, 2)
	q.blockTimeout = 100 * time.Millisecond
	defer client.Del(ctx, q.pending, q.processing, q.dead)

	job := mustJob(t, "u1", ReasonTaskComplete)
	require.NoError(t, q.Enqueue(ctx, job))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, d.Job().ID)

	_, processing, _, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing)

	require.NoError(t, d.Nack(ctx, errors.New("boom")))
	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Nack(ctx, errors.New("boom")))

	pending, processing, dead, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(0), processing)
	assert.Equal(t, int64(1), dead)

	require.NoError(t, q.Enqueue(ctx, mustJob(t, "u2", ReasonMissedDay)))
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, client.LPush(ctx, q.pending, "{garbage").Err())
	valid := mustJob(t, "u3", ReasonReflectionDone)
	require.NoError(t, client.LPush(ctx, q.pending, mustMarshal(t, valid)).Err())

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid.ID, d.Job().ID)
	_, _, dead, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dead)
}

func mustMarshal(t *testing.T, job Job) string {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func TestRedisQueue_ParkReportsWriteFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	q := NewRedisQueue(client, "revup:test:park", 1)
	err := q.park(context.Background(), "{garbage")
	assert.ErrorContains(t, err, "failed to park job payload")
}
