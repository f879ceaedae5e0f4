package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	base := errors.New("boom")

	t.Run("storage write", func(t *testing.T) {
		err := fmt.Errorf("ingest: %w", &StorageWriteError{Key: "a.jpg", Err: base})
		var swe *StorageWriteError
		require.ErrorAs(t, err, &swe)
		assert.Equal(t, "a.jpg", swe.Key)
		assert.ErrorIs(t, err, base)
	})

	t.Run("already exists unwraps to sentinel", func(t *testing.T) {
		err := &AlreadyExistsError{ImageID: "img", ExistingStatus: RecordStatusComplete}
		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.Contains(t, err.Error(), "complete")
	})

	t.Run("transient model error", func(t *testing.T) {
		err := fmt.Errorf("analyze: %w", &ModelCallError{Transient: true, StatusCode: 503, Err: base})
		assert.True(t, IsTransientModelError(err))
		assert.False(t, IsTransientModelError(&ModelCallError{StatusCode: 400, Err: base}))
		assert.False(t, IsTransientModelError(base))
	})
}

func TestErrorKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"transient", &ModelCallError{Transient: true, Err: errors.New("x")}, ErrorKindModelTransient},
		{"terminal", &ModelCallError{StatusCode: 401, Err: errors.New("x")}, ErrorKindModelTerminal},
		{"parse", &ParseError{Kind: ParseNoJSONFound}, "parse:no_json_found"},
		{"canceled", fmt.Errorf("wrap: %w", context.Canceled), ErrorKindCanceled},
		{"other", errors.New("x"), ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKindOf(tt.err))
		})
	}
}

func TestRecordTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	asset := &ImageAsset{ID: "img-1", StorageKey: "img-1.jpg", StorageAddress: "https://cdn/img-1.jpg"}

	rec := NewPendingRecord("rec-1", asset, "gpt-4o-mini", now)
	assert.Equal(t, RecordStatusPending, rec.Status)
	assert.True(t, rec.IsActive())
	assert.Nil(t, rec.RawModelOutput)

	attrs := Attributes{ClothingType: "dress", Color: "red"}
	require.NoError(t, rec.Complete(attrs, `{"clothing_type":"dress"}`, now))
	assert.Equal(t, RecordStatusComplete, rec.Status)
	require.NotNil(t, rec.RawModelOutput)
	require.NotNil(t, rec.CompletedAt)

	assert.ErrorIs(t, rec.Complete(attrs, "again", now), ErrInvalidTransition)
	assert.ErrorIs(t, rec.Fail(errors.New("late"), nil, now), ErrInvalidTransition)

	failed := NewPendingRecord("rec-2", asset, "gpt-4o-mini", now)
	require.NoError(t, failed.Fail(&ParseError{Kind: ParseInvalidType}, nil, now))
	assert.Equal(t, RecordStatusFailed, failed.Status)
	assert.Equal(t, "parse:invalid_type", failed.ErrorKind)
	assert.False(t, failed.IsActive())
	assert.True(t, failed.Status.IsTerminal())
}

func TestAttributesAccessors(t *testing.T) {
	var a Attributes
	for i, k := range AttributeKeys {
		a.Set(k, fmt.Sprintf("v%d", i))
	}
	a.Set("unknown", "ignored")
	assert.Equal(t, "v0", a.ClothingType)
	assert.Equal(t, "v4", a.Occasion)
	assert.Len(t, a.Map(), 5)
	assert.False(t, a.IsEmpty())
	assert.True(t, Attributes{}.IsEmpty())
	assert.Equal(t, "", a.Get("unknown"))
	assert.Equal(t, "img.png", StorageKeyFor("img", "png"))
}
