package progress

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/sanitize"
)

// NATSConfig configures the JetStream key-value backend.
type NATSConfig struct {
	URL    string
	Bucket string
	Token  string
}

// NATSBackend stores evaluations in a JetStream key-value bucket shared by
// every annotator. Record revisions are the bucket's entry revisions.
type NATSBackend struct {
	kv     nats.KeyValue
	nc     *nats.Conn // nil when the connection is owned by the caller
	bucket string
}

// OpenNATS connects to the server and opens the bucket, creating it when
// missing. The returned backend owns the connection.
func OpenNATS(cfg NATSConfig, logger *zap.Logger) (*NATSBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("clustereval"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	b, err := NewNATSBackend(nc, cfg.Bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.nc = nc
	logger.Info("nats progress bucket ready", zap.String("url", cfg.URL), zap.String("bucket", b.bucket))
	return b, nil
}

// NewNATSBackend opens bucket on an existing connection. The caller keeps
// ownership of nc. Characters JetStream rejects in bucket names are
// replaced.
func NewNATSBackend(nc *nats.Conn, bucket string) (*NATSBackend, error) {
	bucket = sanitize.Bucket(bucket)
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "clustereval evaluations keyed by cluster id",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open key-value bucket %s: %w", bucket, err)
	}

	return &NATSBackend{kv: kv, bucket: bucket}, nil
}

func (n *NATSBackend) Name() string { return "nats" }

// natsKey encodes a cluster id into the key alphabet JetStream accepts.
func natsKey(clusterID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(clusterID))
}

func decodeEntry(entry nats.KeyValueEntry) (*evaluation.Evaluation, error) {
	ev := &evaluation.Evaluation{}
	if err := json.Unmarshal(entry.Value(), ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entry.Key(), err)
	}
	ev.Revision = entry.Revision()
	return ev, nil
}

func (n *NATSBackend) Get(_ context.Context, clusterID string) (*evaluation.Evaluation, error) {
	entry, err := n.kv.Get(natsKey(clusterID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", clusterID, err)
	}
	return decodeEntry(entry)
}

func (n *NATSBackend) All(ctx context.Context) (map[string]*evaluation.Evaluation, error) {
	w, err := n.kv.WatchAll(nats.IgnoreDeletes(), nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch bucket %s: %w", n.bucket, err)
	}
	defer w.Stop()

	out := make(map[string]*evaluation.Evaluation)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return nil, fmt.Errorf("watch bucket %s: closed before initial values", n.bucket)
			}
			// A nil entry marks the end of the initial values.
			if entry == nil {
				return out, nil
			}
			ev, err := decodeEntry(entry)
			if err != nil {
				return nil, err
			}
			out[ev.ClusterID] = ev
		}
	}
}

func (n *NATSBackend) Write(_ context.Context, ev *evaluation.Evaluation, prev uint64) (uint64, error) {
	record := ev.Clone()
	record.Revision = 0
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", ev.ClusterID, err)
	}

	key := natsKey(ev.ClusterID)
	var rev uint64
	if prev == 0 {
		rev, err = n.kv.Create(key, data)
	} else {
		rev, err = n.kv.Update(key, data, prev)
	}
	if isWrongRevision(err) {
		return 0, ErrRevisionMismatch
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", ev.ClusterID, err)
	}
	return rev, nil
}

func isWrongRevision(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

// Close closes the connection if the backend owns it.
func (n *NATSBackend) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}
