package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		addr    string
		db      int
		wantErr bool
	}{
		{name: "bare host", url: "redis:6379", addr: "redis:6379"},
		{name: "full url", url: "redis://localhost:6380/2", addr: "localhost:6380", db: 2},
		{name: "empty", url: "  ", wantErr: true},
		{name: "bad scheme", url: "http://localhost:6379", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := ParseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseURL(%q) expected error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL(%q) error = %v", tt.url, err)
			}
			if opt.Addr != tt.addr || opt.DB != tt.db {
				t.Errorf("ParseURL(%q) = %s/%d, want %s/%d", tt.url, opt.Addr, opt.DB, tt.addr, tt.db)
			}
		})
	}
}

func TestTryLock_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	unlock, ok, err := NewRedisLocker(client).TryLock(context.Background(), "finanzapp:test", time.Second)
	if err == nil {
		t.Fatal("TryLock should fail when redis is unreachable")
	}
	if ok || unlock != nil {
		t.Errorf("TryLock = ok %v, unlock set %v; want neither", ok, unlock != nil)
	}
}

func TestNewToken_Unique(t *testing.T) {
	a, err := newToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newToken()
	if a == b || len(a) != 32 {
		t.Errorf("tokens %q and %q should be distinct 32-char hex", a, b)
	}
}
