package ticket

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQR(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		wantW int
	}{
		{"requested size", 128, 128},
		{"too small falls back", 10, defaultQRSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := QR("abc123", tt.size)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, img.Bounds().Dx())
		})
	}
}

func TestPDF(t *testing.T) {
	start := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	reg := domain.Registration{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		EventID:      uuid.New(),
		Code:         "Zm9vYmFyYmF6cXV4Zm9vYmFyYmF6cXV4Zm9vYmFyYmF6cXV4Zm9vYmFyYmF6cXV4",
		Status:       domain.RegistrationConfirmed,
		RegisteredAt: start.Add(-48 * time.Hour),
	}
	ev := domain.Event{
		ID:        reg.EventID,
		Title:     "Café Lecture: Distributed Systems",
		Capacity:  80,
		StartDate: start,
		EndDate:   start.Add(2 * time.Hour),
		Status:    domain.EventPublished,
	}

	b, err := PDF(reg, ev)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
	assert.Greater(t, len(b), 1000)
}
