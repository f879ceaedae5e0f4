package repository

import (
	"testing"

	"github.com/engelke/fashion-hack-2024/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))
	assert.Nil(t, buildFilter(SearchFilters{"color": "  "}))

	f := buildFilter(SearchFilters{"color": "Red", "occasion": "party", "unknown": "x"})
	require.NotNil(t, f)
	require.Len(t, f.Must, 2)

	first := f.Must[0].GetField()
	assert.Equal(t, "color", first.GetKey())
	assert.Equal(t, "red", first.GetMatch().GetKeyword())
	assert.Equal(t, "occasion", f.Must[1].GetField().GetKey())
}

func TestParsePayload(t *testing.T) {
	assert.Nil(t, parsePayload(nil))

	p := parsePayload(map[string]*pb.Value{
		"image_id":      stringValue("img-1"),
		"image_url":     stringValue("https://cdn/img-1.jpg"),
		"clothing_type": stringValue("dress"),
		"color":         stringValue("red"),
	})
	require.NotNil(t, p)
	assert.Equal(t, "img-1", p.ImageID)
	assert.Equal(t, domain.Attributes{ClothingType: "dress", Color: "red"}, p.Attributes)
}
