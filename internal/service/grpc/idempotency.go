package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/storefront/internal/idempotency"
)

const idempotencyKeyHeader = "idempotency-key"

// withIdempotency выполняет run не более одного раза для ключа из метаданных.
// Без ключа или без хранилища run выполняется как обычно. Сохраняются только
// успешные ответы; при ошибке ключ освобождается.
func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	req proto.Message,
	run func(ctx context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	key := readIdempotencyKey(ctx)
	if key == "" || s.idem == nil {
		return run(ctx)
	}

	hash, err := requestHash(method, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "request is not a valid document")
	}

	record, reserved, err := s.idem.Reserve(ctx, key, hash, s.ttl)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("idempotency store unavailable, serving without replay")
		return run(ctx)
	}
	if !reserved {
		return replay(record, hash)
	}

	storeCtx := context.WithoutCancel(ctx)
	release := func() {
		if err := s.idem.Release(storeCtx, key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("release idempotency key failed")
		}
	}

	// Паника уходит дальше в recovery interceptor, но ключ освобождается.
	finished := false
	defer func() {
		if !finished {
			release()
		}
	}()
	resp, runErr := run(ctx)
	finished = true
	if runErr != nil {
		release()
		return nil, runErr
	}

	body, err := protojson.Marshal(resp)
	if err == nil {
		err = s.idem.Complete(storeCtx, key, int(codes.OK), body, s.ttl)
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("store idempotent response failed")
	}
	return resp, nil
}

func replay(record idempotency.Record, hash string) (*structpb.Struct, error) {
	if record.RequestHash != hash {
		return nil, status.Error(codes.FailedPrecondition, "idempotency-key was already used with a different request")
	}
	if record.Status != idempotency.StatusDone {
		return nil, status.Error(codes.Aborted, "request with this idempotency-key is still being processed")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(record.Body, out); err != nil {
		return nil, status.Error(codes.Internal, "stored response is corrupted")
	}
	return out, nil
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyKeyHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func requestHash(method string, req proto.Message) (string, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(method+":"), data...))
	return hex.EncodeToString(sum[:]), nil
}
