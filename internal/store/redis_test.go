package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisWithClient(db, "housmart")

	data, err := json.Marshal(Entry{Payload: []byte(`{"score":55}`), CreatedAt: created})
	require.NoError(t, err)
	mock.ExpectGet("housmart:k1").SetVal(string(data))

	got, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"score":55}`, string(got.Payload))
	assert.True(t, created.Equal(got.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Get_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisWithClient(db, "housmart")

	mock.ExpectGet("housmart:missing").RedisNil()

	got, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Get_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisWithClient(db, "")

	mock.ExpectGet("k1").SetErr(errors.New("connection refused"))

	_, err := s.Get(context.Background(), "k1")
	assert.ErrorContains(t, err, "redis: get cache entry")
}

func TestRedisStore_Put(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisWithClient(db, "housmart")

	e := Entry{Payload: []byte(`{"score":55}`), CreatedAt: created}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	// No EX: expired entries are left for the cache to skip.
	mock.ExpectSet("housmart:k1", data, 0).SetVal("OK")

	require.NoError(t, s.Put(context.Background(), "k1", e, time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}
