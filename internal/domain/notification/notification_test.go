package notification

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	_, err := New(NewParams{ID: "n1", Title: "hi"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(NewParams{ID: "n1", UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	n, err := New(NewParams{ID: "n1", UserID: "u1", Title: " hi "})
	require.NoError(t, err)
	assert.Equal(t, "hi", n.Title)
	assert.Equal(t, TypeSystemAnnouncement, n.Type)
	assert.False(t, n.Read)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	n := Notification{ID: "n1"}
	assert.True(t, n.MarkRead(time.Now()))
	assert.False(t, n.MarkRead(time.Now()))
}

func TestPaginate(t *testing.T) {
	all := make([]Notification, 45)
	for i := range all {
		all[i] = Notification{ID: fmt.Sprintf("n%02d", i)}
	}

	first := Paginate(all, Page{})
	assert.Equal(t, DefaultPageSize, first.Size)
	assert.Len(t, first.Items, 20)
	assert.Equal(t, 3, first.TotalPages)
	assert.Equal(t, 45, first.Total)

	last := Paginate(all, Page{Number: 2, Size: 20})
	assert.Len(t, last.Items, 5)
	assert.Equal(t, "n40", last.Items[0].ID)

	beyond := Paginate(all, Page{Number: 9, Size: 20})
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
}
