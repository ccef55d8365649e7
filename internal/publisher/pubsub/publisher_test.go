package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "crawl-finished")
	require.NoError(t, err)

	pub := New(client, nil)
	defer pub.Stop()

	id, err := pub.Publish(ctx, "crawl-finished", map[string]any{"job_id": "job-1", "pages": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, "job-1", decoded["job_id"])
	require.InDelta(t, 3, decoded["pages"], 0)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := newTestClient(t)
	pub := New(client, nil)
	defer pub.Stop()

	_, err := pub.Publish(ctx, "", "payload")
	require.Error(t, err)

	_, err = pub.Publish(ctx, "missing-topic", "payload")
	require.Error(t, err)

	_, err = pub.Publish(ctx, "crawl-finished", func() {})
	require.Error(t, err)

	var unset *Publisher
	_, err = unset.Publish(ctx, "crawl-finished", "payload")
	require.Error(t, err)
}
