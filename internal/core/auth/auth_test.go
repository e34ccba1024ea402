package auth

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("test-secret-with-enough-entropy!")

type keyRow struct {
	id        string
	name      string
	keyHash   []byte // defaults to the lookup hash
	revokedAt sql.NullTime
	lastUsed  sql.NullTime
}

// fakeQueries serves get-api-key-by-hash from an in-memory table keyed by hash.
type fakeQueries struct {
	rows    map[string]keyRow
	err     error
	updates []string
}

func (f *fakeQueries) Get(ctx context.Context, name string, dest any, args ...any) error {
	if f.err != nil {
		return f.err
	}
	row, ok := f.rows[string(args[0].([]byte))]
	if !ok {
		return sql.ErrNoRows
	}
	v := reflect.ValueOf(dest).Elem()
	v.FieldByName("APIKeyID").SetString(row.id)
	v.FieldByName("Name").SetString(row.name)
	v.FieldByName("KeyHash").SetBytes(row.keyHash)
	v.FieldByName("RevokedAt").Set(reflect.ValueOf(row.revokedAt))
	v.FieldByName("LastUsedAt").Set(reflect.ValueOf(row.lastUsed))
	return nil
}

func (f *fakeQueries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	f.updates = append(f.updates, args[1].(string))
	return nil, nil
}

func issue(t *testing.T, q *fakeQueries, row keyRow) string {
	t.Helper()
	key, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	if q.rows == nil {
		q.rows = make(map[string]keyRow)
	}
	hash := ComputeHMAC(testSecret, key)
	if row.keyHash == nil {
		row.keyHash = hash
	}
	q.rows[string(hash)] = row
	return key
}

func TestParseAPIKey(t *testing.T) {
	valid := FormatAPIKey(testSecretID, strings.Repeat("a1", 32))
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", valid, false},
		{"wrong prefix", strings.Replace(valid, "vd-", "tk-", 1), true},
		{"wrong version", strings.Replace(valid, "-v1-", "-v2-", 1), true},
		{"short secret id", FormatAPIKey("abc", strings.Repeat("a1", 32)), true},
		{"short random", FormatAPIKey(testSecretID, "abcd"), true},
		{"uppercase hex", FormatAPIKey(strings.ToUpper(testSecretID), strings.Repeat("a1", 32)), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, _, err := ParseAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("ParseAPIKey() error = %v, want ErrInvalidKeyFormat", err)
			}
			if !tt.wantErr && secretID != testSecretID {
				t.Errorf("secretID = %q, want %q", secretID, testSecretID)
			}
		})
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	b, _ := GenerateAPIKey(testSecretID)
	if a == b {
		t.Error("GenerateAPIKey() returned the same key twice")
	}
	if _, err := GenerateAPIKey("short"); err == nil {
		t.Error("GenerateAPIKey(short) error = nil, want error")
	}
}

func TestVerifyHMAC(t *testing.T) {
	h := ComputeHMAC(testSecret, "key")
	if !VerifyHMAC(h, ComputeHMAC(testSecret, "key")) {
		t.Error("VerifyHMAC(same) = false, want true")
	}
	if VerifyHMAC(h, ComputeHMAC([]byte("other"), "key")) {
		t.Error("VerifyHMAC(other secret) = true, want false")
	}
}

func TestAuthenticate(t *testing.T) {
	q := &fakeQueries{}
	active := issue(t, q, keyRow{id: "k1", name: "billing"})
	revoked := issue(t, q, keyRow{id: "k2", name: "old", revokedAt: sql.NullTime{Time: time.Now(), Valid: true}})
	mismatched := issue(t, q, keyRow{id: "k3", name: "stale", keyHash: []byte("stored-hash")})
	unregistered, _ := GenerateAPIKey(testSecretID)
	otherSecret, _ := GenerateAPIKey(strings.Repeat("f", 32))

	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
	ctx := context.Background()

	client, err := a.Authenticate(ctx, active)
	if err != nil {
		t.Fatalf("Authenticate(active) error = %v, want nil", err)
	}
	if client != (Client{APIKeyID: "k1", Name: "billing"}) {
		t.Errorf("client = %+v, want k1 billing", client)
	}
	if len(q.updates) != 1 || q.updates[0] != "k1" {
		t.Errorf("updates = %v, want [k1]", q.updates)
	}

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"revoked", revoked, ErrKeyRevoked},
		{"unregistered", unregistered, ErrInvalidKey},
		{"stored hash mismatch", mismatched, ErrInvalidKey},
		{"unknown secret", otherSecret, ErrUnknownKey},
		{"malformed", "nope", ErrInvalidKeyFormat},
	}
	for _, tt := range tests {
		if _, err := a.Authenticate(ctx, tt.key); !errors.Is(err, tt.want) {
			t.Errorf("%s: Authenticate() error = %v, want %v", tt.name, err, tt.want)
		}
	}

	q.err = errors.New("connection refused")
	if _, err := a.Authenticate(ctx, active); !errors.Is(err, ErrDatabase) {
		t.Errorf("Authenticate(db down) error = %v, want ErrDatabase", err)
	}
}

func TestShouldUpdateLastUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		last sql.NullTime
		want bool
	}{
		{sql.NullTime{}, true},
		{sql.NullTime{Time: now.Add(-30 * time.Second), Valid: true}, false},
		{sql.NullTime{Time: now.Add(-2 * time.Minute), Valid: true}, true},
	}
	for _, tt := range tests {
		if got := shouldUpdateLastUsed(tt.last, now); got != tt.want {
			t.Errorf("shouldUpdateLastUsed(%v) = %v, want %v", tt.last, got, tt.want)
		}
	}
}

func TestUnaryInterceptor(t *testing.T) {
	q := &fakeQueries{}
	active := issue(t, q, keyRow{id: "k1", name: "billing"})
	revoked := issue(t, q, keyRow{id: "k2", revokedAt: sql.NullTime{Time: time.Now(), Valid: true}})
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
	interceptor := a.UnaryInterceptor()

	var seen Client
	handler := func(ctx context.Context, req any) (any, error) {
		if c, ok := ClientFromContext(ctx); ok {
			seen = c
		}
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/verdict.v1.DecisionService/Evaluate"}

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
	}{
		{"no metadata", context.Background(), info.FullMethod, codes.Unauthenticated},
		{"missing key", metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "x")), info.FullMethod, codes.Unauthenticated},
		{"revoked", metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, revoked)), info.FullMethod, codes.PermissionDenied},
		{"valid", metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, active)), info.FullMethod, codes.OK},
		{"health skips auth", context.Background(), "/grpc.health.v1.Health/Check", codes.OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			if got := status.Code(err); got != tt.wantCode {
				t.Errorf("code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
		})
	}

	if seen.APIKeyID != "k1" {
		t.Errorf("handler client = %+v, want k1", seen)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStreamInterceptor(t *testing.T) {
	q := &fakeQueries{}
	active := issue(t, q, keyRow{id: "k1", name: "billing"})
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
	interceptor := a.StreamInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/verdict.v1.DecisionService/Evaluate", IsServerStream: true}

	var seen Client
	handler := func(srv any, ss grpc.ServerStream) error {
		seen, _ = ClientFromContext(ss.Context())
		return nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, active))
	if err := interceptor(nil, &fakeStream{ctx: ctx}, info, handler); err != nil {
		t.Fatalf("interceptor() error = %v, want nil", err)
	}
	if seen.Name != "billing" {
		t.Errorf("client = %+v, want billing", seen)
	}

	err := interceptor(nil, &fakeStream{ctx: context.Background()}, info, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}
