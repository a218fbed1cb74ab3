package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxPollInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func postJSON(t *testing.T, url, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestApp_ServesOrdersEndToEnd(t *testing.T) {
	hook := logtest.NewGlobal()
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(make(log.LevelHooks)) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	api := "http://" + a.HTTPAddr()
	ops := "http://" + a.MetricsAddr()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ops + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	status, customer := postJSON(t, api+"/customers", `{"name":"Ann","email":"ann@example.com"}`)
	require.Equal(t, http.StatusCreated, status)
	status, product := postJSON(t, api+"/products", `{"name":"Pen","price":"5.00","quantity":10}`)
	require.Equal(t, http.StatusCreated, status)

	orderBody := `{"customer_id":"` + customer["id"].(string) + `","products":[{"id":"` + product["id"].(string) + `","quantity":3}]}`
	status, first := postJSON(t, api+"/orders", orderBody, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "15", first["total"])

	status, replayed := postJSON(t, api+"/orders", orderBody, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, first["id"], replayed["id"])

	status, rejected := postJSON(t, api+"/orders", strings.Replace(orderBody, `"quantity":3`, `"quantity":8`, 1))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "1 products with stock not found.", rejected["message"])

	code, body := get(t, ops+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "storefront_orders_created_total 1")
	assert.Contains(t, body, `storefront_orders_rejected_total{kind="insufficient_stock"} 1`)

	code, _ = get(t, ops+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	conn, err := grpc.NewClient(a.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}

	var messages []string
	for _, entry := range hook.AllEntries() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "shutdown signal received")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "sqlite"

	_, err := New(context.Background(), cfg, WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestNew_ReleasesResourcesWhenListenFails(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = "256.0.0.1:0"

	_, err := New(context.Background(), cfg, WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen metrics")
}

func TestInitStorage(t *testing.T) {
	logger := log.WithField("test", "storage")

	s, err := initStorage(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	require.NoError(t, err)
	assert.NotNil(t, s.tx)
	assert.NotNil(t, s.outbox)
	assert.Nil(t, s.pinger)
	require.NoError(t, s.close())

	_, err = initStorage(context.Background(), Config{StorageDriver: StorageDriverPostgres}, logger)
	assert.Error(t, err)

	_, err = initStorage(context.Background(), Config{StorageDriver: "sqlite"}, logger)
	assert.Error(t, err)
}

func TestInitPublishers_FallsBackToLog(t *testing.T) {
	pubs := initPublishers(DefaultConfig(), log.WithField("test", "publishers"))
	assert.NotNil(t, pubs.main)
	assert.Nil(t, pubs.dlq)
	assert.Nil(t, pubs.producer)
}

func TestInitIdempotency_FallsBackToMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	backend := initIdempotency(context.Background(), cfg, log.WithField("test", "idempotency"))
	assert.NotNil(t, backend.store)
	assert.NotNil(t, backend.cleanup)
	assert.Nil(t, backend.redis)
}

func TestStopGRPC_ForcesStopAfterTimeout(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, health.NewServer())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(listener) }()

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	// Открытый Watch-стрим не даёт GracefulStop завершиться.
	stream, err := healthpb.NewHealthClient(conn).Watch(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stopGRPC(ctx, server, logger.WithField("test", "grpc"))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "graceful stop timed out, forcing stop", hook.LastEntry().Message)
}
