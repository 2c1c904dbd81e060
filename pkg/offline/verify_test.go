package offline

import (
	"context"
	"errors"
	"testing"
)

func TestVerify(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := Verify(ctx, st, "unknown"); !errors.Is(err, ErrCacheMissing) {
		t.Errorf("unknown tour: got %v, want ErrCacheMissing", err)
	}

	if err := st.RegisterCache(ctx, "empty", "empty"); err != nil {
		t.Fatal(err)
	}
	if err := Verify(ctx, st, "empty"); !errors.Is(err, ErrCacheEmpty) {
		t.Errorf("empty cache: got %v, want ErrCacheEmpty", err)
	}

	if err := st.RegisterCache(ctx, "torn", "torn"); err != nil {
		t.Fatal(err)
	}
	if err := st.PutAsset(ctx, "torn", "/a.mp3", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	if err := Verify(ctx, st, "torn"); !errors.Is(err, ErrCacheNoMetadata) {
		t.Errorf("cache without metadata: got %v, want ErrCacheNoMetadata", err)
	}

	if err := st.PutAsset(ctx, "torn", MetaKey("torn"), []byte(`{}`), "application/json"); err != nil {
		t.Fatal(err)
	}
	if err := Verify(ctx, st, "torn"); err != nil {
		t.Errorf("complete cache: got %v, want nil", err)
	}
}
