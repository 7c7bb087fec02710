// Package natskv provides the key-value watchlist backend on NATS JetStream.
//
// Each face lives under face.<person>.<uuid> as a JSON envelope. A per-person
// index under person.<person> lists the face keys and is updated with
// compare-and-swap on the entry revision. Person IDs are base64url encoded so
// any string maps into the NATS key alphabet without collisions.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

// DefaultBucket is used when no bucket name is configured.
const DefaultBucket = "facewatch_identities"

const (
	facePrefix   = "face."
	personPrefix = "person."

	// maxCASRetries bounds index update attempts under contention.
	maxCASRetries = 32
)

func init() {
	database.RegisterBackend(database.BackendNATS, func(ctx context.Context, opts database.Options) (database.Store, error) {
		return Open(ctx, opts.URL, opts.Bucket, opts.Dim)
	})
}

// Compile-time interface check.
var _ database.Store = (*Store)(nil)

// envelope is the stored JSON form of one identity record.
type envelope struct {
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name"`
	Embedding  []byte    `json:"embedding"`
	SourcePath string    `json:"source_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store implements database.Store on a JetStream key-value bucket.
type Store struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	dim    int
	ownsNC bool
}

// Open connects to url and binds (creating if needed) the bucket.
func Open(ctx context.Context, url, bucket string, dim int) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("facewatch-store"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	s, err := New(ctx, nc, bucket, dim)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.ownsNC = true
	return s, nil
}

// New binds the bucket over an existing connection. Close leaves nc open.
func New(ctx context.Context, nc *nats.Conn, bucket string, dim int) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "facewatch watchlist identities",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("binding key-value bucket %q: %w", bucket, err)
	}
	return &Store{nc: nc, kv: kv, dim: dim}, nil
}

func personToken(personID string) string {
	if personID == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(personID))
}

func indexKey(personID string) string {
	return personPrefix + personToken(personID)
}

// Backend implements database.Store.
func (s *Store) Backend() database.Backend { return database.BackendNATS }

// Add stores the record and appends its key to the person index.
func (s *Store) Add(ctx context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error) {
	if err := database.ValidateEmbedding(embedding, s.dim); err != nil {
		return "", err
	}

	data, err := json.Marshal(envelope{
		PersonID:   personID,
		PersonName: personName,
		Embedding:  database.EncodeEmbedding(embedding),
		SourcePath: sourcePath,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", database.WriteError("encode identity", err)
	}

	key := facePrefix + personToken(personID) + "." + uuid.NewString()
	rev, err := s.kv.Create(ctx, key, data)
	if err != nil {
		return "", database.WriteError("put identity", err)
	}

	if err := s.appendIndex(ctx, personID, key); err != nil {
		if delErr := s.kv.Purge(ctx, key); delErr != nil {
			slog.Warn("failed to roll back identity after index failure", "key", key, "error", delErr)
		}
		return "", database.WriteError("update person index", err)
	}
	return strconv.FormatUint(rev, 10), nil
}

func (s *Store) appendIndex(ctx context.Context, personID, faceKey string) error {
	idx := indexKey(personID)
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := s.kv.Get(ctx, idx)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			data, _ := json.Marshal([]string{faceKey})
			if _, err := s.kv.Create(ctx, idx, data); err != nil {
				lastErr = err
				continue
			}
			return nil
		case err != nil:
			return err
		}

		var keys []string
		if err := json.Unmarshal(entry.Value(), &keys); err != nil {
			return fmt.Errorf("corrupt person index %s: %w", idx, err)
		}
		data, _ := json.Marshal(append(keys, faceKey))
		if _, err := s.kv.Update(ctx, idx, data, entry.Revision()); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("index contention after %d attempts: %w", maxCASRetries, lastErr)
}

// faceKeys lists every face key in the bucket.
func (s *Store) faceKeys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, facePrefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type loaded struct {
	rev uint64
	env envelope
}

func (s *Store) load(ctx context.Context, key string) (loaded, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return loaded{}, err
	}
	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return loaded{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return loaded{rev: entry.Revision(), env: env}, nil
}

// GetAll returns every record ordered by bucket revision, which follows insertion order.
func (s *Store) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	keys, err := s.faceKeys(ctx)
	if err != nil {
		return nil, database.ReadError("list identities", err)
	}

	items := make([]loaded, 0, len(keys))
	for _, k := range keys {
		it, err := s.load(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, database.ReadError("load identity", err)
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].rev < items[j].rev })

	out := make([]database.IdentityRecord, 0, len(items))
	for _, it := range items {
		emb, err := database.DecodeEmbedding(it.env.Embedding)
		if err != nil {
			return nil, database.ReadError("decode identity", err)
		}
		out = append(out, database.IdentityRecord{
			ID:         strconv.FormatUint(it.rev, 10),
			PersonID:   it.env.PersonID,
			PersonName: it.env.PersonName,
			Embedding:  emb,
			SourcePath: it.env.SourcePath,
			CreatedAt:  it.env.CreatedAt,
		})
	}
	return out, nil
}

// GetByPerson resolves the person index and loads each referenced face.
func (s *Store) GetByPerson(ctx context.Context, personID string) ([][]float32, error) {
	entry, err := s.kv.Get(ctx, indexKey(personID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.ReadError("load person index", err)
	}
	var keys []string
	if err := json.Unmarshal(entry.Value(), &keys); err != nil {
		return nil, database.ReadError("decode person index", err)
	}

	out := make([][]float32, 0, len(keys))
	for _, k := range keys {
		it, err := s.load(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, database.ReadError("load identity", err)
		}
		emb, err := database.DecodeEmbedding(it.env.Embedding)
		if err != nil {
			return nil, database.ReadError("decode identity", err)
		}
		out = append(out, emb)
	}
	return out, nil
}

// Count returns the number of face keys.
func (s *Store) Count(ctx context.Context) (int, error) {
	keys, err := s.faceKeys(ctx)
	if err != nil {
		return 0, database.ReadError("count identities", err)
	}
	return len(keys), nil
}

// Close closes the connection when the store opened it.
func (s *Store) Close() error {
	if s.ownsNC {
		s.nc.Close()
	}
	return nil
}
