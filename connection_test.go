package memcache

import (
	"bufio"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLine(line *string) func(r *bufio.Reader) error {
	return func(r *bufio.Reader) error {
		var err error
		*line, err = ascii.ReadLine(r)
		return err
	}
}

func TestConnectionExchange(t *testing.T) {
	mock := testutils.NewConnectionMock("STORED\r\n")
	conn := NewConnection(mock, 0)

	var line string
	req := ascii.NewStorageRequest(ascii.VerbSet, "k", 0, 10, []byte("value"))
	require.NoError(t, conn.Exchange(context.Background(), req, readLine(&line)))

	assert.Equal(t, "set k 0 10 5\r\nvalue\r\n", mock.GetWrittenRequest())
	assert.Equal(t, "STORED", line)
	assert.True(t, mock.Deadline.IsZero())
}

func TestConnectionDeadline(t *testing.T) {
	t.Run("from context", func(t *testing.T) {
		mock := testutils.NewConnectionMock("END\r\n")
		conn := NewConnection(mock, time.Hour)

		deadline := time.Now().Add(time.Minute)
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		defer cancel()

		var line string
		require.NoError(t, conn.Exchange(ctx, ascii.NewRetrievalRequest(ascii.VerbGet, "k"), readLine(&line)))
		assert.True(t, mock.Deadline.Equal(deadline))
	})

	t.Run("from timeout", func(t *testing.T) {
		mock := testutils.NewConnectionMock("END\r\n")
		conn := NewConnection(mock, time.Second)

		before := time.Now()
		var line string
		require.NoError(t, conn.Exchange(context.Background(), ascii.NewRetrievalRequest(ascii.VerbGet, "k"), readLine(&line)))
		assert.False(t, mock.Deadline.Before(before.Add(time.Second)))
	})
}

func TestConnectionErrors(t *testing.T) {
	t.Run("canceled context", func(t *testing.T) {
		mock := testutils.NewConnectionMock()
		conn := NewConnection(mock, 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := conn.Exchange(ctx, ascii.NewRequest(ascii.VerbVersion), readLine(new(string)))
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, mock.GetWrittenRequest())
	})

	t.Run("write failure", func(t *testing.T) {
		mock := testutils.NewConnectionMock()
		mock.WriteErr = errors.New("broken pipe")
		conn := NewConnection(mock, 0)

		err := conn.Exchange(context.Background(), ascii.NewRequest(ascii.VerbVersion), readLine(new(string)))
		var connErr *ascii.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.True(t, ascii.ShouldCloseConnection(err))
	})

	t.Run("closed by peer", func(t *testing.T) {
		mock := testutils.NewConnectionMock()
		conn := NewConnection(mock, 0)

		err := conn.Exchange(context.Background(), ascii.NewRequest(ascii.VerbVersion), readLine(new(string)))
		var connErr *ascii.ConnectionError
		require.ErrorAs(t, err, &connErr)
	})

	t.Run("close", func(t *testing.T) {
		mock := testutils.NewConnectionMock()
		conn := NewConnection(mock, 0)
		require.NoError(t, conn.Close())
		assert.True(t, mock.Closed())
	})
}
