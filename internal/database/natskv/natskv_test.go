package natskv

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1, JetStream: true, StoreDir: t.TempDir()}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func newTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	_, nc := startTestNATS(t)
	s, err := New(context.Background(), nc, "test_identities", dim)
	require.NoError(t, err)
	return s
}

func TestStore_AddAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 3)

	id1, err := s.Add(ctx, "p1", "Alice", []float32{1, 0, 0}, "alice.jpg")
	require.NoError(t, err)
	id2, err := s.Add(ctx, "p2", "Bob", []float32{0, 1, 0}, "")
	require.NoError(t, err)
	_, err = s.Add(ctx, "p1", "Alice", []float32{0.5, 0.5, 0}, "alice2.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alice", all[0].PersonName)
	assert.Equal(t, "alice.jpg", all[0].SourcePath)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, "Bob", all[1].PersonName)
	assert.Equal(t, []float32{0, 1, 0}, all[1].Embedding)
	assert.Equal(t, []float32{0.5, 0.5, 0}, all[2].Embedding)

	embs, err := s.GetByPerson(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0.5, 0.5, 0}}, embs)

	none, err := s.GetByPerson(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_EmptyBucket(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 3)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_RejectsInvalidEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 3)

	_, err := s.Add(ctx, "p1", "Alice", []float32{1, 0}, "")
	require.ErrorIs(t, err, database.ErrInvalidEmbedding)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_PersonIDOutsideKeyAlphabet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)

	_, err := s.Add(ctx, "jane doe/ü*", "Jane", []float32{1, 0}, "")
	require.NoError(t, err)
	_, err = s.Add(ctx, "jane_doe__", "Other", []float32{0, 1}, "")
	require.NoError(t, err)

	embs, err := s.GetByPerson(ctx, "jane doe/ü*")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, embs)
}

func TestStore_ConcurrentAddsSamePerson(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(ctx, "p1", "Alice", []float32{float32(i + 1), 0}, "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	embs, err := s.GetByPerson(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, embs, writers)
}

func TestStore_WriteAfterConnectionClosed(t *testing.T) {
	ctx := context.Background()
	_, nc := startTestNATS(t)
	s, err := New(ctx, nc, "", 2)
	require.NoError(t, err)

	nc.Close()
	_, err = s.Add(ctx, "p1", "Alice", []float32{1, 0}, "")
	require.ErrorIs(t, err, database.ErrStoreWrite)

	_, err = s.Count(ctx)
	require.ErrorIs(t, err, database.ErrStoreRead)
}

func TestOpen_ViaRegistry(t *testing.T) {
	srv, _ := startTestNATS(t)

	store, err := database.Open(context.Background(), database.BackendNATS, database.Options{
		URL: srv.ClientURL(), Dim: 2, Bucket: "registry_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Equal(t, database.BackendNATS, store.Backend())
	_, err = store.Add(context.Background(), "p1", "Alice", []float32{1, 0}, "")
	require.NoError(t, err)
}
