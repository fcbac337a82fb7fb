package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeFirstNonEmptyWins(t *testing.T) {
	base := Record{URL: "example.com", Title: "First Title"}
	base.Merge(Record{URL: "example.com", Title: "Second Title", Email: "hi@example.com"})

	require.Equal(t, "First Title", base.Title)
	require.Equal(t, "hi@example.com", base.Email)
}

func TestMergeEmptyNeverErases(t *testing.T) {
	base := Record{URL: "example.com", Title: "Kept", Postcode: "AB1 2CD"}
	base.Merge(Record{URL: "example.com"})

	require.Equal(t, "Kept", base.Title)
	require.Equal(t, "AB1 2CD", base.Postcode)
}

// TestMergeOrderIndependentForDisjointFields checks that records setting
// different fields reconcile to the same document in either order.
func TestMergeOrderIndependentForDisjointFields(t *testing.T) {
	a := Record{URL: "example.com", Title: "T"}
	b := Record{URL: "example.com", Email: "e@example.com"}

	left := a
	left.Merge(b)
	right := b
	right.Merge(a)

	require.Equal(t, left.Title, right.Title)
	require.Equal(t, left.Email, right.Email)
}

func TestMergeDateKeepsLatest(t *testing.T) {
	early := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	base := Record{URL: "example.com", Date: late}
	base.Merge(Record{URL: "example.com", Date: early})
	require.Equal(t, late, base.Date)

	base = Record{URL: "example.com", Date: early}
	base.Merge(Record{URL: "example.com", Date: late})
	require.Equal(t, late, base.Date)
}

func TestMergeBlacklistMonotonic(t *testing.T) {
	base := Record{URL: "example.com", IsBlacklisted: true}
	base.Merge(Record{URL: "example.com"})
	require.True(t, base.IsBlacklisted)
}

func TestMergePhonesCapAndDedup(t *testing.T) {
	merged, dropped := MergePhonesDropped(
		[]string{"[+44] 7508770171", "[+44] 7508770172"},
		[]string{"[+44] 7508770171", "[+44] 7508770173", "[+44] 7508770174"},
	)
	require.Equal(t, []string{"[+44] 7508770171", "[+44] 7508770172", "[+44] 7508770173"}, merged)
	require.Equal(t, 1, dropped)
}

func TestMergePhonesEmpty(t *testing.T) {
	merged, dropped := MergePhonesDropped(nil, []string{"", ""})
	require.Nil(t, merged)
	require.Zero(t, dropped)
}

func TestRecordIsEmpty(t *testing.T) {
	require.True(t, Record{URL: "example.com", Date: time.Now()}.IsEmpty())
	require.False(t, Record{URL: "example.com", Title: "x"}.IsEmpty())
	require.False(t, Record{URL: "example.com", IsBlacklisted: true}.IsEmpty())
	require.False(t, Record{URL: "example.com", Phones: []string{"123"}}.IsEmpty())
}
