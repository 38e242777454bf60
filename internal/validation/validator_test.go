package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/validation"
)

type metadataRequest struct {
	Owner       string   `json:"owner_id" validate:"required,owner_id"`
	Style       string   `json:"style" validate:"max=40"`
	SeriesIndex *float64 `json:"series_index,omitempty" validate:"omitempty,gte=0"`
	Cover       string   `json:"cover,omitempty" validate:"omitempty,datauri"`
	Category    string   `json:"category,omitempty" validate:"omitempty,oneof=unstarted in-progress finished"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	index := 2.0

	err := v.Validate(metadataRequest{
		Owner:       "camille",
		Style:       "roman",
		SeriesIndex: &index,
		Cover:       "data:image/png;base64,AAAA",
		Category:    "in-progress",
	})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()
	negative := -1.0

	tests := []struct {
		name    string
		req     metadataRequest
		field   string
		message string
	}{
		{"missing owner", metadataRequest{}, "owner_id", "is required"},
		{"owner with colon", metadataRequest{Owner: "alice:archive"}, "owner_id", "must be a valid owner id"},
		{"style too long", metadataRequest{Owner: "a", Style: string(make([]byte, 41))}, "style", "must not exceed 40 characters"},
		{"negative series index", metadataRequest{Owner: "a", SeriesIndex: &negative}, "series_index", "must be greater than or equal to 0"},
		{"cover url", metadataRequest{Owner: "a", Cover: "https://example.com/c.jpg"}, "cover", "must be an image data URI"},
		{"unknown category", metadataRequest{Owner: "a", Category: "abandoned"}, "category", "must be one of: unstarted in-progress finished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.message, details[tt.field])
		})
	}
}

func TestOwnerID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "camille", want: "camille"},
		{raw: "  léa  ", want: "léa"},
		// "e" + combining acute normalizes to the precomposed form.
		{raw: "le\u0301a", want: "l\u00e9a"},
		{raw: "user-42_b.c@home", want: "user-42_b.c@home"},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
		{raw: "alice:archive", wantErr: true},
		{raw: "-leading", wantErr: true},
		{raw: "a/b", wantErr: true},
		{raw: string(make([]rune, 65)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := validation.OwnerID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainerrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
