package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	nf := NewError(KindGeocodeNotFound, MsgGeocodeNotFound, nil)
	assert.Equal(t, KindGeocodeNotFound, KindOf(nf))
	assert.Equal(t, KindGeocodeNotFound, KindOf(fmt.Errorf("outer: %w", nf)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapError_CarriesStatus(t *testing.T) {
	cause := &StatusError{Provider: "arcgis", Status: 503}
	err := WrapError(KindBoundaryLookup, "Failed to find HUC8 boundary", cause)

	assert.Equal(t, 503, err.Status)
	assert.Equal(t, "Failed to find HUC8 boundary: arcgis API error: status 503", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, MsgNoBoundaryFound, UserMessage(NewError(KindNoBoundaryFound, MsgNoBoundaryFound, nil), MsgSearchFailed))
	assert.Equal(t, MsgSearchFailed, UserMessage(errors.New("socket closed"), MsgSearchFailed))
	assert.Equal(t, MsgSearchFailed, UserMessage(&LookupError{Kind: KindAdjacencyLookup}, MsgSearchFailed))
}

func TestLookupError_ErrorFallsBack(t *testing.T) {
	assert.Equal(t, "boom", (&LookupError{Kind: KindUnknown, Err: errors.New("boom")}).Error())
	assert.Equal(t, "adjacency_lookup_failed", (&LookupError{Kind: KindAdjacencyLookup}).Error())
}
